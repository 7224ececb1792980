package transformer

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"toyformer/utils"
)

// DecoderBlock embeds the target sequence, adds the positional signal, runs
// causally-masked self-attention with a residual, then cross-attention over
// the encoder output with a second residual:
//
//	r1  = (embed + pos) + selfAttn(embed + pos, causal)
//	out = r1 + crossAttn(q=r1, k=encOut, v=encOut)
//
// The second residual adds onto the self-attention residual output, not the
// raw positional encoding: both additions compound.
type DecoderBlock struct {
	embed *Embedding
	pos   *PositionalEncoding
	self  *AttentionHead
	cross *AttentionHead

	lastIDs []int
}

func NewDecoderBlock(dModel, maxLen, vocabSize int, src rand.Source) (*DecoderBlock, error) {
	pos, err := NewPositionalEncoding(dModel, maxLen)
	if err != nil {
		return nil, err
	}
	embed, err := NewEmbedding(dModel, vocabSize, src)
	if err != nil {
		return nil, err
	}
	self, err := NewAttentionHead(dModel, src)
	if err != nil {
		return nil, err
	}
	cross, err := NewAttentionHead(dModel, src)
	if err != nil {
		return nil, err
	}
	return &DecoderBlock{embed: embed, pos: pos, self: self, cross: cross}, nil
}

// Forward runs the block over target token IDs with encOut as the fixed
// (dModel x Tsrc) encoder context. Cross-attention runs unmasked: the
// decoder may look at every source position.
func (b *DecoderBlock) Forward(ids []int, encOut *mat.Dense) (*mat.Dense, error) {
	X, err := b.embed.Encode(ids)
	if err != nil {
		return nil, err
	}
	X, err = b.pos.Apply(X)
	if err != nil {
		return nil, err
	}
	S1, err := b.self.Forward(X, CausalMask(len(ids)))
	if err != nil {
		return nil, err
	}
	r1 := utils.ToDense(utils.Add(X, S1))
	S2, err := b.cross.Attend(r1, encOut, encOut, nil)
	if err != nil {
		return nil, err
	}
	b.lastIDs = ids
	return utils.ToDense(utils.Add(r1, S2)), nil
}

// Backward walks the two residuals in reverse, updates both attention
// layers and the embedding, and returns the gradient wrt the encoder
// output (key and value paths of cross-attention summed) so the caller can
// keep backpropagating into the encoder.
func (b *DecoderBlock) Backward(dOut *mat.Dense, lr float64) (dEnc *mat.Dense) {
	// out = r1 + cross(r1, enc, enc)
	dQ, dK, dV := b.cross.AttendBackward(dOut, lr)
	dR1 := utils.ToDense(utils.Add(dOut, dQ))
	dEnc = utils.ToDense(utils.Add(dK, dV))

	// r1 = X + self(X)
	dX := utils.ToDense(utils.Add(dR1, b.self.Backward(dR1, lr)))
	b.embed.Backward(dX, b.lastIDs, lr)
	return dEnc
}

package transformer

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"toyformer/utils"
)

// EncoderBlock embeds a token sequence, adds the positional signal, applies
// one self-attention layer with no mask (all positions mutually visible),
// and adds a residual connection:
//
//	out = (embed + pos) + selfAttn(embed + pos)
type EncoderBlock struct {
	embed *Embedding
	pos   *PositionalEncoding
	attn  attention

	lastIDs []int
}

// NewEncoderBlock wires a block around a single attention head.
func NewEncoderBlock(dModel, maxLen, vocabSize int, src rand.Source) (*EncoderBlock, error) {
	head, err := NewAttentionHead(dModel, src)
	if err != nil {
		return nil, err
	}
	return newEncoderBlock(dModel, maxLen, vocabSize, head, src)
}

// NewMultiHeadEncoderBlock wires a block around multi-head attention.
func NewMultiHeadEncoderBlock(dModel, maxLen, vocabSize, nHeads int, src rand.Source) (*EncoderBlock, error) {
	mha, err := NewMultiHeadAttention(dModel, nHeads, src)
	if err != nil {
		return nil, err
	}
	return newEncoderBlock(dModel, maxLen, vocabSize, mha, src)
}

func newEncoderBlock(dModel, maxLen, vocabSize int, attn attention, src rand.Source) (*EncoderBlock, error) {
	pos, err := NewPositionalEncoding(dModel, maxLen)
	if err != nil {
		return nil, err
	}
	embed, err := NewEmbedding(dModel, vocabSize, src)
	if err != nil {
		return nil, err
	}
	return &EncoderBlock{embed: embed, pos: pos, attn: attn}, nil
}

func (b *EncoderBlock) Forward(ids []int) (*mat.Dense, error) {
	X, err := b.embed.Encode(ids)
	if err != nil {
		return nil, err
	}
	X, err = b.pos.Apply(X)
	if err != nil {
		return nil, err
	}
	A, err := b.attn.Forward(X, nil)
	if err != nil {
		return nil, err
	}
	b.lastIDs = ids
	return utils.ToDense(utils.Add(X, A)), nil
}

// Backward propagates through the residual and the attention layer, then
// scatters the input gradient into the embedding table. The positional
// table is fixed, so the gradient stops at the embedding.
func (b *EncoderBlock) Backward(dOut *mat.Dense, lr float64) {
	dX := utils.ToDense(utils.Add(dOut, b.attn.Backward(dOut, lr)))
	b.embed.Backward(dX, b.lastIDs, lr)
}

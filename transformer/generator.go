package transformer

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"

	"gonum.org/v1/gonum/mat"

	"toyformer/optimizations"
	"toyformer/utils"
	"toyformer/vocab"
)

// GeneratorConfig sizes the decoder-only language model. EOS is the ID that
// terminates generation.
type GeneratorConfig struct {
	DModel    int
	MaxLen    int
	VocabSize int
	EOS       int
	Seed      uint64
}

// Generator is the decoder-only variant: embedding plus positional signal,
// one causally-masked self-attention layer with a residual, and an output
// head to vocabulary logits.
type Generator struct {
	cfg   GeneratorConfig
	embed *Embedding
	pos   *PositionalEncoding
	attn  *AttentionHead
	head  *OutputHead
}

func NewGenerator(cfg GeneratorConfig) (*Generator, error) {
	if cfg.EOS < 0 || cfg.EOS >= cfg.VocabSize {
		return nil, &InvalidConfigError{Field: "eos", Value: cfg.EOS, Reason: "not a vocabulary ID"}
	}
	src := rand.NewPCG(cfg.Seed, 0)
	pos, err := NewPositionalEncoding(cfg.DModel, cfg.MaxLen)
	if err != nil {
		return nil, err
	}
	embed, err := NewEmbedding(cfg.DModel, cfg.VocabSize, src)
	if err != nil {
		return nil, err
	}
	attn, err := NewAttentionHead(cfg.DModel, src)
	if err != nil {
		return nil, err
	}
	head, err := NewOutputHead(cfg.DModel, cfg.VocabSize, src)
	if err != nil {
		return nil, err
	}
	return &Generator{cfg: cfg, embed: embed, pos: pos, attn: attn, head: head}, nil
}

// Forward returns (V x T) logits for a token ID sequence.
func (g *Generator) Forward(ids []int) (*mat.Dense, error) {
	X, err := g.embed.Encode(ids)
	if err != nil {
		return nil, err
	}
	X, err = g.pos.Apply(X)
	if err != nil {
		return nil, err
	}
	S, err := g.attn.Forward(X, CausalMask(len(ids)))
	if err != nil {
		return nil, err
	}
	Y := utils.ToDense(utils.Add(X, S))
	return g.head.Forward(Y)
}

// TrainStep teacher-forces one training sequence: positions 0..n-2 go in,
// and position t is supervised against seq[t+1]. Returns the mean
// per-position cross-entropy.
func (g *Generator) TrainStep(seq []int, lr float64) (float64, error) {
	if len(seq) < 2 {
		return 0, &ShapeError{
			Op:   "Generator.TrainStep",
			Want: "sequence of at least 2 tokens",
			Got:  fmt.Sprintf("%d", len(seq)),
		}
	}
	input := seq[:len(seq)-1]
	logits, err := g.Forward(input)
	if err != nil {
		return 0, err
	}
	V, T := logits.Dims()
	dLogits := mat.NewDense(V, T, nil)
	total := 0.0
	for t := 0; t < T; t++ {
		gold := seq[t+1]
		if gold < 0 || gold >= V {
			return 0, &vocab.Error{ID: gold, Size: V}
		}
		loss, grad := utils.CrossEntropyWithIndex(utils.ColAsVector(logits, t), gold)
		total += loss
		for i := 0; i < V; i++ {
			dLogits.Set(i, t, grad.At(i, 0))
		}
	}

	dY := g.head.Backward(dLogits, lr)
	dX := utils.ToDense(utils.Add(dY, g.attn.Backward(dY, lr)))
	g.embed.Backward(dX, input, lr)
	return total / float64(T), nil
}

// Train runs epoch passes over the sequences and returns the final mean
// epoch loss.
func (g *Generator) Train(seqs [][]int, tc TrainConfig) (float64, error) {
	if len(seqs) == 0 {
		return 0, fmt.Errorf("generator: no training sequences")
	}
	step := 0
	last := math.Inf(1)
	for e := 0; e < tc.Epochs; e++ {
		total := 0.0
		for _, seq := range seqs {
			step++
			lr := optimizations.LRSchedule(step, tc.PeakLR, tc.WarmupSteps, tc.DecaySteps)
			loss, err := g.TrainStep(seq, lr)
			if err != nil {
				return 0, err
			}
			total += loss
		}
		last = total / float64(len(seqs))
		if tc.TargetLoss > 0 && last < tc.TargetLoss {
			break
		}
	}
	return last, nil
}

// Generate extends prompt greedily: re-run the forward pass over the whole
// running sequence, take the argmax at the last position (ties to the
// lowest ID), append, and repeat until EOS comes out or the running
// sequence reaches MaxLen. Returns only the newly generated IDs, in order.
func (g *Generator) Generate(prompt []int) ([]int, error) {
	if len(prompt) == 0 {
		return nil, &ShapeError{Op: "Generator.Generate", Want: "non-empty prompt", Got: "0 tokens"}
	}
	running := slices.Clone(prompt)
	var out []int
	for len(running) < g.cfg.MaxLen {
		logits, err := g.Forward(running)
		if err != nil {
			return nil, err
		}
		next := utils.ArgmaxVec(utils.LastCol(logits))
		running = append(running, next)
		out = append(out, next)
		if next == g.cfg.EOS {
			break
		}
	}
	return out, nil
}

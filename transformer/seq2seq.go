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

// Seq2SeqConfig sizes the encoder-decoder translator. SOS and EOS are the
// IDs of the start and end markers in the shared vocabulary.
type Seq2SeqConfig struct {
	DModel    int
	MaxLen    int
	VocabSize int
	SOS       int
	EOS       int
	Seed      uint64
}

// Seq2Seq is the encoder-decoder variant: an EncoderBlock over the source,
// a DecoderBlock over the target (masked self-attention plus cross-attention
// over the encoder output), and an output head to vocabulary logits.
type Seq2Seq struct {
	cfg  Seq2SeqConfig
	enc  *EncoderBlock
	dec  *DecoderBlock
	head *OutputHead
}

func NewSeq2Seq(cfg Seq2SeqConfig) (*Seq2Seq, error) {
	if cfg.SOS < 0 || cfg.SOS >= cfg.VocabSize {
		return nil, &InvalidConfigError{Field: "sos", Value: cfg.SOS, Reason: "not a vocabulary ID"}
	}
	if cfg.EOS < 0 || cfg.EOS >= cfg.VocabSize {
		return nil, &InvalidConfigError{Field: "eos", Value: cfg.EOS, Reason: "not a vocabulary ID"}
	}
	src := rand.NewPCG(cfg.Seed, 0)
	enc, err := NewEncoderBlock(cfg.DModel, cfg.MaxLen, cfg.VocabSize, src)
	if err != nil {
		return nil, err
	}
	dec, err := NewDecoderBlock(cfg.DModel, cfg.MaxLen, cfg.VocabSize, src)
	if err != nil {
		return nil, err
	}
	head, err := NewOutputHead(cfg.DModel, cfg.VocabSize, src)
	if err != nil {
		return nil, err
	}
	return &Seq2Seq{cfg: cfg, enc: enc, dec: dec, head: head}, nil
}

// TrainStep teacher-forces one pair: the decoder sees [SOS, target...] in
// parallel and every position is supervised against its true next token,
// ending with EOS. Returns the mean per-position cross-entropy.
func (m *Seq2Seq) TrainStep(pair TranslationPair, lr float64) (float64, error) {
	decIn := append([]int{m.cfg.SOS}, pair.Target...)
	labels := append(slices.Clone(pair.Target), m.cfg.EOS)

	encOut, err := m.enc.Forward(pair.Source)
	if err != nil {
		return 0, err
	}
	decOut, err := m.dec.Forward(decIn, encOut)
	if err != nil {
		return 0, err
	}
	logits, err := m.head.Forward(decOut) // (V x T)
	if err != nil {
		return 0, err
	}

	V, T := logits.Dims()
	dLogits := mat.NewDense(V, T, nil)
	total := 0.0
	for t := 0; t < T; t++ {
		if labels[t] < 0 || labels[t] >= V {
			return 0, &vocab.Error{ID: labels[t], Size: V}
		}
		loss, grad := utils.CrossEntropyWithIndex(utils.ColAsVector(logits, t), labels[t])
		total += loss
		for i := 0; i < V; i++ {
			dLogits.Set(i, t, grad.At(i, 0))
		}
	}

	dDec := m.head.Backward(dLogits, lr)
	dEnc := m.dec.Backward(dDec, lr)
	m.enc.Backward(dEnc, lr)
	return total / float64(T), nil
}

// Train runs epoch passes over the pairs and returns the final mean epoch
// loss.
func (m *Seq2Seq) Train(pairs []TranslationPair, tc TrainConfig) (float64, error) {
	if len(pairs) == 0 {
		return 0, fmt.Errorf("seq2seq: no training pairs")
	}
	step := 0
	last := math.Inf(1)
	for e := 0; e < tc.Epochs; e++ {
		total := 0.0
		for _, p := range pairs {
			step++
			lr := optimizations.LRSchedule(step, tc.PeakLR, tc.WarmupSteps, tc.DecaySteps)
			loss, err := m.TrainStep(p, lr)
			if err != nil {
				return 0, err
			}
			total += loss
		}
		last = total / float64(len(pairs))
		if tc.TargetLoss > 0 && last < tc.TargetLoss {
			break
		}
	}
	return last, nil
}

// Generate greedily decodes a translation of src. The encoder context is
// computed once and stays fixed; the decoder re-runs over the growing
// sequence, taking the argmax at the last position each step (ties to the
// lowest ID). It stops once EOS is produced or the running sequence reaches
// MaxLen, and returns the generated IDs in order (EOS included when
// produced).
func (m *Seq2Seq) Generate(src []int) ([]int, error) {
	encOut, err := m.enc.Forward(src)
	if err != nil {
		return nil, err
	}
	running := []int{m.cfg.SOS}
	var out []int
	for len(running) < m.cfg.MaxLen {
		decOut, err := m.dec.Forward(running, encOut)
		if err != nil {
			return nil, err
		}
		logits, err := m.head.Forward(decOut)
		if err != nil {
			return nil, err
		}
		next := utils.ArgmaxVec(utils.LastCol(logits))
		running = append(running, next)
		out = append(out, next)
		if next == m.cfg.EOS {
			break
		}
	}
	return out, nil
}

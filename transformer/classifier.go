package transformer

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"toyformer/optimizations"
	"toyformer/utils"
)

// ClassifierConfig sizes the encoder-only sequence classifier.
type ClassifierConfig struct {
	DModel     int
	MaxLen     int
	VocabSize  int
	NumHeads   int
	NumClasses int
	Seed       uint64
}

// Classifier is the encoder-only variant: one EncoderBlock with multi-head
// self-attention, mean-pooled over positions, then a linear head to class
// logits.
type Classifier struct {
	cfg   ClassifierConfig
	enc   *EncoderBlock
	Whead *mat.Dense

	t        int
	mWh, vWh *mat.Dense

	lastPooled *mat.Dense
	lastT      int
}

func NewClassifier(cfg ClassifierConfig) (*Classifier, error) {
	if cfg.NumClasses < 2 {
		return nil, &InvalidConfigError{Field: "numClasses", Value: cfg.NumClasses, Reason: "must be >= 2"}
	}
	src := rand.NewPCG(cfg.Seed, 0)
	enc, err := NewMultiHeadEncoderBlock(cfg.DModel, cfg.MaxLen, cfg.VocabSize, cfg.NumHeads, src)
	if err != nil {
		return nil, err
	}
	return &Classifier{
		cfg:   cfg,
		enc:   enc,
		Whead: mat.NewDense(cfg.NumClasses, cfg.DModel, utils.RandomArray(cfg.NumClasses*cfg.DModel, float64(cfg.DModel), src)),
		mWh:   mat.NewDense(cfg.NumClasses, cfg.DModel, nil),
		vWh:   mat.NewDense(cfg.NumClasses, cfg.DModel, nil),
	}, nil
}

// Forward returns (numClasses x 1) logits for a token ID sequence.
func (c *Classifier) Forward(ids []int) (*mat.Dense, error) {
	encOut, err := c.enc.Forward(ids)
	if err != nil {
		return nil, err
	}
	d, T := encOut.Dims()
	pooled := mat.NewDense(d, 1, nil)
	for i := 0; i < d; i++ {
		s := 0.0
		for t := 0; t < T; t++ {
			s += encOut.At(i, t)
		}
		pooled.Set(i, 0, s/float64(T))
	}
	c.lastPooled = pooled
	c.lastT = T
	return utils.ToDense(utils.Dot(c.Whead, pooled)), nil
}

// Predict returns the argmax class for ids; ties go to the lowest class.
func (c *Classifier) Predict(ids []int) (int, error) {
	logits, err := c.Forward(ids)
	if err != nil {
		return 0, err
	}
	return utils.ArgmaxVec(logits), nil
}

// TrainStep runs one forward/backward/update pass for a single example and
// returns its cross-entropy loss.
func (c *Classifier) TrainStep(ids []int, label int, lr float64) (float64, error) {
	if label < 0 || label >= c.cfg.NumClasses {
		return 0, &ShapeError{
			Op:   "Classifier.TrainStep",
			Want: fmt.Sprintf("label in [0,%d)", c.cfg.NumClasses),
			Got:  fmt.Sprintf("%d", label),
		}
	}
	logits, err := c.Forward(ids)
	if err != nil {
		return 0, err
	}
	loss, dLogits := utils.CrossEntropyWithIndex(logits, label)

	dWh := utils.ToDense(utils.Dot(dLogits, c.lastPooled.T()))
	dPooled := utils.ToDense(utils.Dot(c.Whead.T(), dLogits)) // (d x 1)

	// mean pool spreads the gradient evenly over positions
	dEnc := mat.NewDense(c.cfg.DModel, c.lastT, nil)
	for i := 0; i < c.cfg.DModel; i++ {
		g := dPooled.At(i, 0) / float64(c.lastT)
		for t := 0; t < c.lastT; t++ {
			dEnc.Set(i, t, g)
		}
	}

	c.t++
	optimizations.AdamUpdateInPlace(c.Whead, dWh, c.mWh, c.vWh, c.t, lr, adamBeta1, adamBeta2, adamEps, 0)
	c.enc.Backward(dEnc, lr)
	return loss, nil
}

// Train runs epoch passes over the examples and returns the final mean
// epoch loss.
func (c *Classifier) Train(examples []LabeledSequence, tc TrainConfig) (float64, error) {
	if len(examples) == 0 {
		return 0, fmt.Errorf("classifier: no training examples")
	}
	step := 0
	last := math.Inf(1)
	for e := 0; e < tc.Epochs; e++ {
		total := 0.0
		for _, ex := range examples {
			step++
			lr := optimizations.LRSchedule(step, tc.PeakLR, tc.WarmupSteps, tc.DecaySteps)
			loss, err := c.TrainStep(ex.IDs, ex.Label, lr)
			if err != nil {
				return 0, err
			}
			total += loss
		}
		last = total / float64(len(examples))
		if tc.TargetLoss > 0 && last < tc.TargetLoss {
			break
		}
	}
	return last, nil
}

package transformer

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"toyformer/optimizations"
	"toyformer/utils"
	"toyformer/vocab"
)

// Embedding is a trainable (dModel x V) lookup table; token t embeds as
// column t.
type Embedding struct {
	dModel    int
	vocabSize int
	W         *mat.Dense

	t    int
	m, v *mat.Dense
}

func NewEmbedding(dModel, vocabSize int, src rand.Source) (*Embedding, error) {
	if vocabSize < 1 {
		return nil, &InvalidConfigError{Field: "vocabSize", Value: vocabSize, Reason: "must be >= 1"}
	}
	return &Embedding{
		dModel:    dModel,
		vocabSize: vocabSize,
		W:         mat.NewDense(dModel, vocabSize, utils.RandomArray(dModel*vocabSize, float64(dModel), src)),
		m:         mat.NewDense(dModel, vocabSize, nil),
		v:         mat.NewDense(dModel, vocabSize, nil),
	}, nil
}

// Encode maps a token ID sequence to its (dModel x T) embedding matrix.
// IDs outside [0, vocabSize) surface as a vocab.Error.
func (e *Embedding) Encode(ids []int) (*mat.Dense, error) {
	if len(ids) == 0 {
		return nil, &ShapeError{Op: "Embedding.Encode", Want: "at least one token", Got: "0"}
	}
	out := mat.NewDense(e.dModel, len(ids), nil)
	for t, id := range ids {
		if id < 0 || id >= e.vocabSize {
			return nil, &vocab.Error{ID: id, Size: e.vocabSize}
		}
		for i := 0; i < e.dModel; i++ {
			out.Set(i, t, e.W.At(i, id))
		}
	}
	return out, nil
}

// Backward scatters per-position input gradients into the columns of the
// tokens that were looked up, then Adam-steps the table. Repeated tokens
// accumulate.
func (e *Embedding) Backward(dX *mat.Dense, ids []int, lr float64) {
	dW := mat.NewDense(e.dModel, e.vocabSize, nil)
	for t, id := range ids {
		for i := 0; i < e.dModel; i++ {
			dW.Set(i, id, dW.At(i, id)+dX.At(i, t))
		}
	}
	e.t++
	optimizations.AdamUpdateInPlace(e.W, dW, e.m, e.v, e.t, lr, adamBeta1, adamBeta2, adamEps, 0)
}

// OutputHead is the final linear projection from block output to vocabulary
// logits: W is (V x dModel), no bias, untied from the input embedding.
type OutputHead struct {
	dModel int
	W      *mat.Dense

	t    int
	m, v *mat.Dense

	lastIn *mat.Dense // (dModel x T)
}

func NewOutputHead(dModel, vocabSize int, src rand.Source) (*OutputHead, error) {
	if vocabSize < 1 {
		return nil, &InvalidConfigError{Field: "vocabSize", Value: vocabSize, Reason: "must be >= 1"}
	}
	return &OutputHead{
		dModel: dModel,
		W:      mat.NewDense(vocabSize, dModel, utils.RandomArray(vocabSize*dModel, float64(dModel), src)),
		m:      mat.NewDense(vocabSize, dModel, nil),
		v:      mat.NewDense(vocabSize, dModel, nil),
	}, nil
}

// Forward maps (dModel x T) block output to (V x T) logits, one column of
// raw vocabulary scores per position.
func (o *OutputHead) Forward(Y *mat.Dense) (*mat.Dense, error) {
	if r, _ := Y.Dims(); r != o.dModel {
		return nil, &ShapeError{
			Op:   "OutputHead.Forward",
			Want: fmt.Sprintf("%d rows", o.dModel),
			Got:  fmt.Sprintf("%d", r),
		}
	}
	o.lastIn = Y
	return utils.ToDense(utils.Dot(o.W, Y)), nil
}

// Backward Adam-steps the projection and returns the gradient wrt its input.
func (o *OutputHead) Backward(dLogits *mat.Dense, lr float64) *mat.Dense {
	dW := utils.ToDense(utils.Dot(dLogits, o.lastIn.T()))
	dY := utils.ToDense(utils.Dot(o.W.T(), dLogits))
	o.t++
	optimizations.AdamUpdateInPlace(o.W, dW, o.m, o.v, o.t, lr, adamBeta1, adamBeta2, adamEps, 0)
	return dY
}

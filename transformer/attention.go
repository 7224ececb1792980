package transformer

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"toyformer/optimizations"
	"toyformer/utils"
)

const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8

	// Additive mask sentinel: effectively -inf once it goes through softmax.
	maskNegInf = -1e30
)

// CausalMask returns an additive (T x T) mask with 0 on and below the
// diagonal and -1e30 strictly above it, so position i cannot attend to any
// j > i. Encoder self-attention and cross-attention pass nil instead.
func CausalMask(T int) *mat.Dense {
	out := mat.NewDense(T, T, nil)
	for i := 0; i < T; i++ {
		for j := i + 1; j < T; j++ {
			out.Set(i, j, maskNegInf)
		}
	}
	return out
}

// attention is one self-attention layer from a block's point of view:
// either a single AttentionHead or a MultiHeadAttention.
type attention interface {
	Forward(X, mask *mat.Dense) (*mat.Dense, error)
	Backward(dY *mat.Dense, lr float64) *mat.Dense
}

// AttentionHead holds one set of query/key/value projections, each
// (dModel x dModel) with no bias, and computes scaled dot-product attention.
// Queries may come from a different sequence than keys/values
// (cross-attention); the common self-attention case passes one sequence for
// all three.
type AttentionHead struct {
	dModel     int
	Wq, Wk, Wv *mat.Dense

	// Adam state
	t                            int
	mWq, vWq, mWk, vWk, mWv, vWv *mat.Dense

	// cache for backprop
	lastQin, lastKin, lastVin *mat.Dense
	q, k, v                   *mat.Dense
	A                         *mat.Dense // (Tq x Tk) post-softmax weights
}

func NewAttentionHead(dModel int, src rand.Source) (*AttentionHead, error) {
	if dModel < 1 {
		return nil, &InvalidConfigError{Field: "dModel", Value: dModel, Reason: "must be >= 1"}
	}
	h := &AttentionHead{
		dModel: dModel,
		Wq:     mat.NewDense(dModel, dModel, utils.RandomArray(dModel*dModel, float64(dModel), src)),
		Wk:     mat.NewDense(dModel, dModel, utils.RandomArray(dModel*dModel, float64(dModel), src)),
		Wv:     mat.NewDense(dModel, dModel, utils.RandomArray(dModel*dModel, float64(dModel), src)),
		mWq:    mat.NewDense(dModel, dModel, nil),
		vWq:    mat.NewDense(dModel, dModel, nil),
		mWk:    mat.NewDense(dModel, dModel, nil),
		vWk:    mat.NewDense(dModel, dModel, nil),
		mWv:    mat.NewDense(dModel, dModel, nil),
		vWv:    mat.NewDense(dModel, dModel, nil),
	}
	return h, nil
}

// Attend computes scaled dot-product attention:
// project, score, scale by 1/sqrt(dModel), mask (nil = no suppression),
// softmax over the key axis, then aggregate values. Qin is (dModel x Tq),
// Kin and Vin are (dModel x Tk); the result is (dModel x Tq), each column a
// convex combination of projected value columns.
func (h *AttentionHead) Attend(Qin, Kin, Vin, mask *mat.Dense) (*mat.Dense, error) {
	if err := h.checkInputs(Qin, Kin, Vin, mask); err != nil {
		return nil, err
	}
	q := utils.ToDense(utils.Dot(h.Wq, Qin)) // (d x Tq)
	k := utils.ToDense(utils.Dot(h.Wk, Kin)) // (d x Tk)
	v := utils.ToDense(utils.Dot(h.Wv, Vin)) // (d x Tk)

	rescale := 1.0 / math.Sqrt(float64(h.dModel))
	S := utils.ToDense(utils.Scale(rescale, utils.Dot(q.T(), k))) // (Tq x Tk)

	var A *mat.Dense
	if mask != nil {
		A = utils.RowSoftmaxMasked(S, mask)
	} else {
		A = utils.RowSoftmax(S)
	}
	out := utils.ToDense(utils.Dot(v, A.T())) // (d x Tq)

	h.lastQin, h.lastKin, h.lastVin = Qin, Kin, Vin
	h.q, h.k, h.v = q, k, v
	h.A = A
	return out, nil
}

func (h *AttentionHead) checkInputs(Qin, Kin, Vin, mask *mat.Dense) error {
	for _, in := range []struct {
		name string
		m    *mat.Dense
	}{{"Qin", Qin}, {"Kin", Kin}, {"Vin", Vin}} {
		if r, _ := in.m.Dims(); r != h.dModel {
			return &ShapeError{
				Op:   "AttentionHead.Attend",
				Want: fmt.Sprintf("%s with %d rows", in.name, h.dModel),
				Got:  fmt.Sprintf("%d", r),
			}
		}
	}
	_, tq := Qin.Dims()
	_, tk := Kin.Dims()
	if _, tv := Vin.Dims(); tv != tk {
		return &ShapeError{
			Op:   "AttentionHead.Attend",
			Want: fmt.Sprintf("Vin with %d columns to match Kin", tk),
			Got:  fmt.Sprintf("%d", tv),
		}
	}
	if mask != nil {
		if mr, mc := mask.Dims(); mr != tq || mc != tk {
			return &ShapeError{
				Op:   "AttentionHead.Attend",
				Want: fmt.Sprintf("(%d x %d) mask", tq, tk),
				Got:  fmt.Sprintf("(%d x %d)", mr, mc),
			}
		}
	}
	return nil
}

// Weights returns the head's attention weights from the last Attend call.
func (h *AttentionHead) Weights() *mat.Dense { return h.A }

// AttendBackwardGradsOnly computes gradients wrt the three inputs and the
// three projection weights, without touching the weights. Self-attention
// callers sum the three input gradients.
func (h *AttentionHead) AttendBackwardGradsOnly(dOut *mat.Dense) (
	dQin, dKin, dVin *mat.Dense,
	dWq, dWk, dWv *mat.Dense,
) {
	rescale := 1.0 / math.Sqrt(float64(h.dModel))

	// out = v * A^T
	dV := utils.ToDense(utils.Dot(dOut, h.A))      // (d x Tk)
	dAT := utils.ToDense(utils.Dot(h.v.T(), dOut)) // (Tk x Tq)
	dA := dAT.T()                                  // (Tq x Tk)

	// A = softmax_row(S); masked entries of A are 0 so they stay 0 here
	dS := utils.SoftmaxBackward(dA, h.A) // (Tq x Tk)

	// S = (q^T k) * rescale
	dq := utils.ToDense(utils.Scale(rescale, utils.Dot(h.k, dS.T()))) // (d x Tq)
	dk := utils.ToDense(utils.Scale(rescale, utils.Dot(h.q, dS)))     // (d x Tk)

	dWq = utils.ToDense(utils.Dot(dq, h.lastQin.T()))
	dWk = utils.ToDense(utils.Dot(dk, h.lastKin.T()))
	dWv = utils.ToDense(utils.Dot(dV, h.lastVin.T()))

	dQin = utils.ToDense(utils.Dot(h.Wq.T(), dq))
	dKin = utils.ToDense(utils.Dot(h.Wk.T(), dk))
	dVin = utils.ToDense(utils.Dot(h.Wv.T(), dV))
	return dQin, dKin, dVin, dWq, dWk, dWv
}

// AttendBackward computes input gradients and applies one Adam step to the
// projection weights.
func (h *AttentionHead) AttendBackward(dOut *mat.Dense, lr float64) (dQin, dKin, dVin *mat.Dense) {
	dQin, dKin, dVin, dWq, dWk, dWv := h.AttendBackwardGradsOnly(dOut)
	h.t++
	optimizations.AdamUpdateInPlace(h.Wq, dWq, h.mWq, h.vWq, h.t, lr, adamBeta1, adamBeta2, adamEps, 0)
	optimizations.AdamUpdateInPlace(h.Wk, dWk, h.mWk, h.vWk, h.t, lr, adamBeta1, adamBeta2, adamEps, 0)
	optimizations.AdamUpdateInPlace(h.Wv, dWv, h.mWv, h.vWv, h.t, lr, adamBeta1, adamBeta2, adamEps, 0)
	return dQin, dKin, dVin
}

// Forward runs the head as self-attention over one sequence.
func (h *AttentionHead) Forward(X, mask *mat.Dense) (*mat.Dense, error) {
	return h.Attend(X, X, X, mask)
}

// Backward is the self-attention counterpart of Forward: the input gradient
// is the sum of the query, key and value paths.
func (h *AttentionHead) Backward(dY *mat.Dense, lr float64) *mat.Dense {
	dQin, dKin, dVin := h.AttendBackward(dY, lr)
	return utils.ToDense(utils.Add(utils.Add(dQin, dKin), dVin))
}

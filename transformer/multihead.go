package transformer

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	"toyformer/optimizations"
	"toyformer/utils"
)

// MultiHeadAttention runs a fixed-size ordered set of independently-owned
// AttentionHeads over the same input and mixes them with a learned output
// projection.
//
// Every head here keeps the FULL model width: head outputs are (dModel x T)
// each, concatenated to (H*dModel x T), then projected back down by
// Wout (dModel x H*dModel). This is not the canonical dModel/H split — the
// two are not equivalent (parameter counts differ) and this variant is kept
// on purpose; do not "fix" it to the traditional formulation.
type MultiHeadAttention struct {
	dModel int
	heads  []*AttentionHead
	Wout   *mat.Dense

	t        int
	mWo, vWo *mat.Dense

	ocat *mat.Dense // (H*dModel x T) cache for backprop
}

func NewMultiHeadAttention(dModel, nHeads int, src rand.Source) (*MultiHeadAttention, error) {
	if nHeads < 1 {
		return nil, &InvalidConfigError{Field: "nHeads", Value: nHeads, Reason: "must be >= 1"}
	}
	heads := make([]*AttentionHead, nHeads)
	for i := range heads {
		h, err := NewAttentionHead(dModel, src)
		if err != nil {
			return nil, err
		}
		heads[i] = h
	}
	cat := nHeads * dModel
	return &MultiHeadAttention{
		dModel: dModel,
		heads:  heads,
		Wout:   mat.NewDense(dModel, cat, utils.RandomArray(dModel*cat, float64(cat), src)),
		mWo:    mat.NewDense(dModel, cat, nil),
		vWo:    mat.NewDense(dModel, cat, nil),
	}, nil
}

func (mha *MultiHeadAttention) Heads() int { return len(mha.heads) }

// Forward runs every head as self-attention over X, concatenates the
// full-width outputs in head order, and projects back to dModel.
func (mha *MultiHeadAttention) Forward(X, mask *mat.Dense) (*mat.Dense, error) {
	_, T := X.Dims()
	ocat := mat.NewDense(len(mha.heads)*mha.dModel, T, nil)
	for idx, h := range mha.heads {
		out, err := h.Forward(X, mask)
		if err != nil {
			return nil, err
		}
		base := idx * mha.dModel
		for i := 0; i < mha.dModel; i++ {
			for t := 0; t < T; t++ {
				ocat.Set(base+i, t, out.At(i, t))
			}
		}
	}
	mha.ocat = ocat
	return utils.ToDense(utils.Dot(mha.Wout, ocat)), nil
}

// BackwardGradsOnly returns the input gradient and all weight gradients
// without applying updates.
func (mha *MultiHeadAttention) BackwardGradsOnly(dY *mat.Dense) (
	dX *mat.Dense,
	dWq, dWk, dWv []*mat.Dense,
	dWout *mat.Dense,
) {
	_, T := dY.Dims()
	dWout = utils.ToDense(utils.Dot(dY, mha.ocat.T()))
	dOcat := utils.ToDense(utils.Dot(mha.Wout.T(), dY)) // (H*d x T)

	dWq = make([]*mat.Dense, len(mha.heads))
	dWk = make([]*mat.Dense, len(mha.heads))
	dWv = make([]*mat.Dense, len(mha.heads))
	dX = mat.NewDense(mha.dModel, T, nil)
	for idx, h := range mha.heads {
		base := idx * mha.dModel
		dO := utils.ToDense(dOcat.Slice(base, base+mha.dModel, 0, T))
		dQin, dKin, dVin, dq, dk, dv := h.AttendBackwardGradsOnly(dO)
		dWq[idx], dWk[idx], dWv[idx] = dq, dk, dv
		dX.Add(dX, utils.ToDense(utils.Add(utils.Add(dQin, dKin), dVin)))
	}
	return dX, dWq, dWk, dWv, dWout
}

// Backward computes gradients, Adam-steps every head's projections and the
// output projection, and returns the input gradient.
func (mha *MultiHeadAttention) Backward(dY *mat.Dense, lr float64) *mat.Dense {
	dX, dWq, dWk, dWv, dWout := mha.BackwardGradsOnly(dY)
	for idx, h := range mha.heads {
		h.t++
		optimizations.AdamUpdateInPlace(h.Wq, dWq[idx], h.mWq, h.vWq, h.t, lr, adamBeta1, adamBeta2, adamEps, 0)
		optimizations.AdamUpdateInPlace(h.Wk, dWk[idx], h.mWk, h.vWk, h.t, lr, adamBeta1, adamBeta2, adamEps, 0)
		optimizations.AdamUpdateInPlace(h.Wv, dWv[idx], h.mWv, h.vWv, h.t, lr, adamBeta1, adamBeta2, adamEps, 0)
	}
	mha.t++
	optimizations.AdamUpdateInPlace(mha.Wout, dWout, mha.mWo, mha.vWo, mha.t, lr, adamBeta1, adamBeta2, adamEps, 0)
	return dX
}

package transformer

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"toyformer/utils"
)

func TestMultiHeadForwardShape(t *testing.T) {
	const d, T = 4, 5
	mha, err := NewMultiHeadAttention(d, 3, rand.NewPCG(1, 0))
	require.NoError(t, err)
	require.Equal(t, 3, mha.Heads())

	X := mat.NewDense(d, T, utils.RandomArray(d*T, float64(d), rand.NewPCG(2, 0)))
	out, err := mha.Forward(X, nil)
	require.NoError(t, err)
	r, c := out.Dims()
	require.Equal(t, d, r)
	require.Equal(t, T, c)

	var cfgErr *InvalidConfigError
	_, err = NewMultiHeadAttention(d, 0, rand.NewPCG(3, 0))
	require.ErrorAs(t, err, &cfgErr)
}

// A single full-width head behind an identity-free output projection must
// still reduce to plain attention semantics: shape and weight rows intact.
func TestMultiHeadSingleHeadWeights(t *testing.T) {
	const d, T = 2, 4
	mha, err := NewMultiHeadAttention(d, 1, rand.NewPCG(4, 0))
	require.NoError(t, err)

	X := mat.NewDense(d, T, utils.RandomArray(d*T, float64(d), rand.NewPCG(5, 0)))
	_, err = mha.Forward(X, CausalMask(T))
	require.NoError(t, err)

	A := mha.heads[0].Weights()
	for i := 0; i < T; i++ {
		for j := i + 1; j < T; j++ {
			require.InDelta(t, 0.0, A.At(i, j), 1e-15)
		}
	}
}

func TestMultiHeadBackwardFiniteDifference(t *testing.T) {
	const d, T, H = 2, 3, 2
	mha, err := NewMultiHeadAttention(d, H, rand.NewPCG(6, 0))
	require.NoError(t, err)

	X := mat.NewDense(d, T, utils.RandomArray(d*T, float64(d), rand.NewPCG(7, 0)))
	C := mat.NewDense(d, T, utils.RandomArray(d*T, 1, rand.NewPCG(8, 0)))

	loss := func() float64 {
		out, err := mha.Forward(X, nil)
		require.NoError(t, err)
		total := 0.0
		for i := 0; i < d; i++ {
			for j := 0; j < T; j++ {
				total += C.At(i, j) * out.At(i, j)
			}
		}
		return total
	}

	loss()
	dX, dWq, _, _, dWout := mha.BackwardGradsOnly(C)

	const eps = 1e-6
	check := func(name string, param, analytic *mat.Dense) {
		r, c := param.Dims()
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				orig := param.At(i, j)
				param.Set(i, j, orig+eps)
				up := loss()
				param.Set(i, j, orig-eps)
				down := loss()
				param.Set(i, j, orig)
				require.InDelta(t, (up-down)/(2*eps), analytic.At(i, j), 1e-5,
					"%s (%d,%d)", name, i, j)
			}
		}
	}
	check("Wout", mha.Wout, dWout)
	check("head0.Wq", mha.heads[0].Wq, dWq[0])
	check("head1.Wq", mha.heads[1].Wq, dWq[1])
	check("X", X, dX)
}

package transformer

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"toyformer/utils"
	"toyformer/vocab"
)

func TestEmbeddingEncode(t *testing.T) {
	e, err := NewEmbedding(3, 5, rand.NewPCG(1, 0))
	require.NoError(t, err)

	X, err := e.Encode([]int{4, 0, 4})
	require.NoError(t, err)
	r, c := X.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 3, c)
	// same token, same column
	for i := 0; i < 3; i++ {
		require.Equal(t, X.At(i, 0), X.At(i, 2))
		require.Equal(t, e.W.At(i, 4), X.At(i, 0))
	}

	var verr *vocab.Error
	_, err = e.Encode([]int{5})
	require.ErrorAs(t, err, &verr)
	require.Equal(t, 5, verr.ID)

	_, err = e.Encode([]int{-1})
	require.ErrorAs(t, err, &verr)

	var shapeErr *ShapeError
	_, err = e.Encode(nil)
	require.ErrorAs(t, err, &shapeErr)
}

// Repeated tokens accumulate gradient; untouched tokens keep their vectors.
func TestEmbeddingBackwardScatters(t *testing.T) {
	e, err := NewEmbedding(2, 4, rand.NewPCG(2, 0))
	require.NoError(t, err)
	before := mat.DenseCopyOf(e.W)

	dX := mat.NewDense(2, 3, []float64{
		1, 1, 1,
		1, 1, 1,
	})
	e.Backward(dX, []int{0, 2, 0}, 0.1)

	for i := 0; i < 2; i++ {
		require.NotEqual(t, before.At(i, 0), e.W.At(i, 0))
		require.NotEqual(t, before.At(i, 2), e.W.At(i, 2))
		require.Equal(t, before.At(i, 1), e.W.At(i, 1))
		require.Equal(t, before.At(i, 3), e.W.At(i, 3))
	}
}

func TestOutputHeadForwardShape(t *testing.T) {
	head, err := NewOutputHead(3, 7, rand.NewPCG(3, 0))
	require.NoError(t, err)

	Y := mat.NewDense(3, 2, utils.RandomArray(6, 3, rand.NewPCG(4, 0)))
	logits, err := head.Forward(Y)
	require.NoError(t, err)
	r, c := logits.Dims()
	require.Equal(t, 7, r)
	require.Equal(t, 2, c)

	var shapeErr *ShapeError
	_, err = head.Forward(mat.NewDense(4, 2, nil))
	require.ErrorAs(t, err, &shapeErr)
}

func TestOutputHeadBackwardInputGradient(t *testing.T) {
	const d, V, T = 2, 4, 3
	head, err := NewOutputHead(d, V, rand.NewPCG(5, 0))
	require.NoError(t, err)

	Y := mat.NewDense(d, T, utils.RandomArray(d*T, float64(d), rand.NewPCG(6, 0)))
	C := mat.NewDense(V, T, utils.RandomArray(V*T, 1, rand.NewPCG(7, 0)))
	W := mat.DenseCopyOf(head.W)

	loss := func() float64 {
		logits, err := head.Forward(Y)
		require.NoError(t, err)
		total := 0.0
		for i := 0; i < V; i++ {
			for j := 0; j < T; j++ {
				total += C.At(i, j) * logits.At(i, j)
			}
		}
		return total
	}

	loss()
	// logits = W*Y is linear, so dY = W^T * C exactly
	dY := head.Backward(C, 0) // lr 0 keeps W readable below via the copy
	want := utils.ToDense(utils.Dot(W.T(), C))
	require.True(t, mat.EqualApprox(want, dY, 1e-12))

	const eps = 1e-6
	head.W.Copy(W)
	for i := 0; i < d; i++ {
		for j := 0; j < T; j++ {
			orig := Y.At(i, j)
			Y.Set(i, j, orig+eps)
			up := loss()
			Y.Set(i, j, orig-eps)
			down := loss()
			Y.Set(i, j, orig)
			require.InDelta(t, (up-down)/(2*eps), dY.At(i, j), 1e-6)
		}
	}
}

package transformer

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// PositionalEncoding is the fixed sinusoidal position signal:
//
//	table[2i][pos]   = sin(pos / 10000^(2i/dModel))
//	table[2i+1][pos] = cos(pos / 10000^(2i/dModel))
//
// The table is (dModel x maxLen), computed once at construction, never
// trained, and safely shared read-only across forward passes.
type PositionalEncoding struct {
	dModel int
	maxLen int
	table  *mat.Dense
}

func NewPositionalEncoding(dModel, maxLen int) (*PositionalEncoding, error) {
	if dModel < 2 || dModel%2 != 0 {
		return nil, &InvalidConfigError{Field: "dModel", Value: dModel, Reason: "must be even and >= 2"}
	}
	if maxLen < 1 {
		return nil, &InvalidConfigError{Field: "maxLen", Value: maxLen, Reason: "must be >= 1"}
	}
	table := mat.NewDense(dModel, maxLen, nil)
	for pos := 0; pos < maxLen; pos++ {
		for i := 0; i < dModel; i += 2 {
			angle := float64(pos) / math.Pow(10000, float64(i)/float64(dModel))
			table.Set(i, pos, math.Sin(angle))
			table.Set(i+1, pos, math.Cos(angle))
		}
	}
	return &PositionalEncoding{dModel: dModel, maxLen: maxLen, table: table}, nil
}

func (pe *PositionalEncoding) DModel() int { return pe.dModel }
func (pe *PositionalEncoding) MaxLen() int { return pe.maxLen }

// At reads the fixed table entry for dimension row at position pos.
func (pe *PositionalEncoding) At(row, pos int) float64 { return pe.table.At(row, pos) }

// Apply returns X + table[:, :T] for a (dModel x T) sequence, T <= maxLen.
func (pe *PositionalEncoding) Apply(X *mat.Dense) (*mat.Dense, error) {
	d, T := X.Dims()
	if d != pe.dModel {
		return nil, &ShapeError{
			Op:   "PositionalEncoding.Apply",
			Want: fmt.Sprintf("%d embedding rows", pe.dModel),
			Got:  fmt.Sprintf("%d", d),
		}
	}
	if T > pe.maxLen {
		return nil, &ShapeError{
			Op:   "PositionalEncoding.Apply",
			Want: fmt.Sprintf("sequence length <= %d", pe.maxLen),
			Got:  fmt.Sprintf("%d", T),
		}
	}
	out := mat.NewDense(d, T, nil)
	for t := 0; t < T; t++ {
		for i := 0; i < d; i++ {
			out.Set(i, t, X.At(i, t)+pe.table.At(i, t))
		}
	}
	return out, nil
}

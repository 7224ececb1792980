package optimizations

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// AdamUpdateInPlace applies one AdamW step to p:
// p -= lr * (mhat/(sqrt(vhat)+eps) + weightDecay*p) with bias correction.
// m and v are the running first/second moment estimates for p and are
// updated in place; t is the 1-based step count for bias correction.
func AdamUpdateInPlace(
	p, g, m, v *mat.Dense,
	t int,
	lr, beta1, beta2, eps, weightDecay float64,
) {
	pr, pc := p.Dims()
	if gr, gc := g.Dims(); gr != pr || gc != pc {
		panic("AdamUpdateInPlace: grad shape mismatch")
	}
	if mr, mc := m.Dims(); mr != pr || mc != pc {
		panic("AdamUpdateInPlace: m shape mismatch")
	}
	if vr, vc := v.Dims(); vr != pr || vc != pc {
		panic("AdamUpdateInPlace: v shape mismatch")
	}
	b1t := math.Pow(beta1, float64(t))
	b2t := math.Pow(beta2, float64(t))
	c1 := 1.0 / (1.0 - b1t)
	c2 := 1.0 / (1.0 - b2t)
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			gij := g.At(i, j)
			mij := beta1*m.At(i, j) + (1.0-beta1)*gij
			vij := beta2*v.At(i, j) + (1.0-beta2)*gij*gij
			mhat := mij * c1
			vhat := vij * c2
			update := mhat/(math.Sqrt(vhat)+eps) + weightDecay*p.At(i, j)
			m.Set(i, j, mij)
			v.Set(i, j, vij)
			p.Set(i, j, p.At(i, j)-lr*update)
		}
	}
}

// LRSchedule is linear warmup to peak over warmupSteps, then cosine decay
// over decaySteps (0 disables decay). step is 1-based.
func LRSchedule(step int, peak float64, warmupSteps, decaySteps int) float64 {
	if step <= 0 {
		return 0
	}
	if warmupSteps > 0 && step < warmupSteps {
		return peak * float64(step) / float64(warmupSteps)
	}
	if decaySteps > 0 {
		x := float64(step-warmupSteps) / float64(decaySteps)
		if x > 1 {
			x = 1
		} else if x < 0 {
			x = 0
		}
		return peak * 0.5 * (1 + math.Cos(math.Pi*x))
	}
	return peak
}

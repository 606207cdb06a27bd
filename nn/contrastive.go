package nn

import (
	"fmt"
	"math"

	"edgeadv/tensor"

	"gonum.org/v1/gonum/mat"
)

// PosTemp is the temperature of the clean-vs-clean similarity rows.
const PosTemp = 0.2

// DefaultNegTemp is the default temperature of the cross-branch rows.
const DefaultNegTemp = 0.5

// Contrastive separates clean and perturbed embeddings. All three logit
// batches are L2-normalized row-wise; the positive evidence for an anchor is
// the full clean-vs-clean similarity row (diagonal masked to -Inf before
// exponentiation), the negatives are the clean-vs-perturbed1 and
// clean-vs-perturbed2 rows at negTemp. Per anchor the loss is
// -log(Σexp(pos) / (Σexp(pos) + Σexp(neg1) + Σexp(neg2))), batch-averaged.
// The positive term deliberately uses the whole off-diagonal clean batch
// rather than a single matched pair.
//
// Returns the scalar loss and its gradients with respect to the raw (un-
// normalized) clean, perturbed1 and perturbed2 logits.
func Contrastive(clean, p1, p2 *tensor.Tensor, negTemp float64) (float64, *tensor.Tensor, *tensor.Tensor, *tensor.Tensor, error) {
	if len(clean.Shape) != 2 {
		return 0, nil, nil, nil, fmt.Errorf("contrastive: logits must be 2D, got %v", clean.Shape)
	}
	if !clean.SameShape(p1) || !clean.SameShape(p2) {
		return 0, nil, nil, nil, fmt.Errorf("contrastive: shape mismatch: %v vs %v vs %v",
			clean.Shape, p1.Shape, p2.Shape)
	}
	n, k := clean.Shape[0], clean.Shape[1]

	u, uNorm := normalizeRows(clean)
	v, vNorm := normalizeRows(p1)
	w, wNorm := normalizeRows(p2)

	// Pairwise similarities, exponentiated at their temperatures.
	expA := mat.NewDense(n, n, nil) // clean vs clean, diagonal masked out
	expB := mat.NewDense(n, n, nil) // clean vs perturbed1
	expC := mat.NewDense(n, n, nil) // clean vs perturbed2
	expA.Mul(u, u.T())
	expB.Mul(u, v.T())
	expC.Mul(u, w.T())
	for i := 0; i < n; i++ {
		expA.Set(i, i, math.Inf(-1))
	}
	expA.Apply(func(_, _ int, s float64) float64 { return math.Exp(s / PosTemp) }, expA)
	expB.Apply(func(_, _ int, s float64) float64 { return math.Exp(s / negTemp) }, expB)
	expC.Apply(func(_, _ int, s float64) float64 { return math.Exp(s / negTemp) }, expC)

	inv := 1.0 / float64(n)
	loss := 0.0
	pos := make([]float64, n)   // Σexp(pos row)
	denom := make([]float64, n) // pos + Σexp(neg rows)
	for i := 0; i < n; i++ {
		rowSumA, rowSumB, rowSumC := 0.0, 0.0, 0.0
		for j := 0; j < n; j++ {
			rowSumA += expA.At(i, j)
			rowSumB += expB.At(i, j)
			rowSumC += expC.At(i, j)
		}
		pos[i] = rowSumA
		denom[i] = rowSumA + rowSumB + rowSumC
		loss -= math.Log(pos[i] / denom[i])
	}
	loss *= inv

	// dL/d(sim) matrices: alpha for the clean-clean pairs, beta/gamma for the
	// cross-branch pairs; each row i is scaled by its anchor's pos/denom.
	alpha := mat.NewDense(n, n, nil)
	beta := mat.NewDense(n, n, nil)
	gamma := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		ca := inv * (1/denom[i] - 1/pos[i]) / PosTemp
		cn := inv / (denom[i] * negTemp)
		for j := 0; j < n; j++ {
			if i != j {
				alpha.Set(i, j, ca*expA.At(i, j))
			}
			beta.Set(i, j, cn*expB.At(i, j))
			gamma.Set(i, j, cn*expC.At(i, j))
		}
	}

	// Gradients with respect to the normalized embeddings. The clean batch
	// appears on both sides of the clean-clean product and on the anchor side
	// of both cross-branch products.
	gu := mat.NewDense(n, k, nil)
	var tmp mat.Dense
	gu.Mul(alpha, u)
	tmp.Mul(alpha.T(), u)
	gu.Add(gu, &tmp)
	tmp.Reset()
	tmp.Mul(beta, v)
	gu.Add(gu, &tmp)
	tmp.Reset()
	tmp.Mul(gamma, w)
	gu.Add(gu, &tmp)

	gv := mat.NewDense(n, k, nil)
	gv.Mul(beta.T(), u)
	gw := mat.NewDense(n, k, nil)
	gw.Mul(gamma.T(), u)

	gClean := denormalizeRows(gu, u, uNorm)
	gP1 := denormalizeRows(gv, v, vNorm)
	gP2 := denormalizeRows(gw, w, wNorm)
	return loss, gClean, gP1, gP2, nil
}

// normalizeRows returns the row-wise L2 normalization of a [n, k] tensor as
// a dense matrix, plus the per-row norms.
func normalizeRows(t *tensor.Tensor) (*mat.Dense, []float64) {
	n, k := t.Shape[0], t.Shape[1]
	out := mat.NewDense(n, k, nil)
	norms := make([]float64, n)
	const eps = 1e-12
	for i := 0; i < n; i++ {
		sum := 0.0
		for j := 0; j < k; j++ {
			x := t.Data[i*k+j]
			sum += x * x
		}
		r := math.Sqrt(sum)
		if r < eps {
			r = eps
		}
		norms[i] = r
		for j := 0; j < k; j++ {
			out.Set(i, j, t.Data[i*k+j]/r)
		}
	}
	return out, norms
}

// denormalizeRows maps a gradient on unit rows back to the raw rows:
// dL/dx = (g - (g·u)u)/‖x‖.
func denormalizeRows(g, unit *mat.Dense, norms []float64) *tensor.Tensor {
	n, k := g.Dims()
	out := tensor.New(n, k)
	for i := 0; i < n; i++ {
		dot := 0.0
		for j := 0; j < k; j++ {
			dot += g.At(i, j) * unit.At(i, j)
		}
		for j := 0; j < k; j++ {
			out.Data[i*k+j] = (g.At(i, j) - dot*unit.At(i, j)) / norms[i]
		}
	}
	return out
}

package nn

import (
	"fmt"
	"math"

	"edgeadv/tensor"
)

// OriginClasses is the class count of the first source dataset. Labels below
// it carry origin flag 1, labels at or above it flag 0.
const OriginClasses = 10

// AntiClampBound bounds the anti-classification term to keep its gradient
// from exploding when the underlying cross-entropy grows without limit.
const AntiClampBound = 10.0

// LossWeights are the fixed positive weights combining the loss terms.
type LossWeights struct {
	Classification     float64
	AntiClassification float64
	Similarity1        float64
	Indicator          float64
	Similarity2        float64
	Contrastive        float64
}

// DefaultLossWeights returns the canonical weighting
// 3·classification + anti + 5·sim1 + 2·indicator + 2·sim2 + contrastive.
func DefaultLossWeights() LossWeights {
	return LossWeights{
		Classification:     3,
		AntiClassification: 1,
		Similarity1:        5,
		Indicator:          2,
		Similarity2:        2,
		Contrastive:        1,
	}
}

// LossTerms holds the per-batch scalars of each term and their weighted sum.
type LossTerms struct {
	Classification     float64
	AntiClassification float64
	Similarity1        float64
	Indicator          float64
	Similarity2        float64
	Contrastive        float64
	Total              float64
}

// LossGrads holds the weighted gradients of the total loss with respect to
// the three logit batches and the two perturbed image batches. The clean
// image is a constant leaf and receives no gradient.
type LossGrads struct {
	LogitsClean      *tensor.Tensor
	LogitsPerturbed1 *tensor.Tensor
	LogitsPerturbed2 *tensor.Tensor
	Perturbed1       *tensor.Tensor
	Perturbed2       *tensor.Tensor
}

// Softmax applies a max-shifted softmax to each row of a [batch, K] tensor.
func Softmax(logits *tensor.Tensor) *tensor.Tensor {
	batch, k := logits.Shape[0], logits.Shape[1]
	out := tensor.New(batch, k)
	for b := 0; b < batch; b++ {
		row := logits.Data[b*k : (b+1)*k]
		maxLogit := row[0]
		for _, v := range row {
			if v > maxLogit {
				maxLogit = v
			}
		}
		expSum := 0.0
		for i, v := range row {
			e := math.Exp(v - maxLogit)
			out.Data[b*k+i] = e
			expSum += e
		}
		for i := range row {
			out.Data[b*k+i] /= expSum
		}
	}
	return out
}

// CrossEntropy computes mean softmax cross-entropy over a batch and the
// gradient (softmax - one_hot)/batch with respect to the logits.
func CrossEntropy(logits *tensor.Tensor, labels []int) (float64, *tensor.Tensor, error) {
	if len(logits.Shape) != 2 {
		return 0, nil, fmt.Errorf("cross-entropy: logits must be 2D, got %v", logits.Shape)
	}
	batch, k := logits.Shape[0], logits.Shape[1]
	if len(labels) != batch {
		return 0, nil, fmt.Errorf("cross-entropy: %d labels for batch of %d", len(labels), batch)
	}

	probs := Softmax(logits)
	loss := 0.0
	grad := tensor.New(batch, k)
	inv := 1.0 / float64(batch)
	for b := 0; b < batch; b++ {
		y := labels[b]
		if y < 0 || y >= k {
			return 0, nil, fmt.Errorf("cross-entropy: label %d outside [0, %d)", y, k)
		}
		p := probs.Data[b*k+y]
		if p < 1e-10 {
			p = 1e-10
		}
		loss -= math.Log(p)
		for i := 0; i < k; i++ {
			grad.Data[b*k+i] = probs.Data[b*k+i] * inv
		}
		grad.Data[b*k+y] -= inv
	}
	return loss * inv, grad, nil
}

// AntiClassification returns -CrossEntropy(logits, labels) clamped to
// [-AntiClampBound, AntiClampBound]. While the clamp is active the term is a
// constant, so the gradient is zero.
func AntiClassification(logits *tensor.Tensor, labels []int) (float64, *tensor.Tensor, error) {
	ce, grad, err := CrossEntropy(logits, labels)
	if err != nil {
		return 0, nil, err
	}
	raw := -ce
	if raw > AntiClampBound {
		return AntiClampBound, tensor.New(logits.Shape...), nil
	}
	if raw < -AntiClampBound {
		return -AntiClampBound, tensor.New(logits.Shape...), nil
	}
	return raw, tensor.Scale(-1, grad), nil
}

// CosineDissimilarity computes 1 - mean(cos(aᵢ, bᵢ)) over per-sample
// flattened rows, and the gradient with respect to b. a is treated as a
// constant and receives no gradient.
func CosineDissimilarity(a, b *tensor.Tensor) (float64, *tensor.Tensor, error) {
	if !a.SameShape(b) {
		return 0, nil, fmt.Errorf("cosine: shape mismatch: %v vs %v", a.Shape, b.Shape)
	}
	batch := a.Shape[0]
	dim := a.Numel() / batch

	const eps = 1e-8
	grad := tensor.New(b.Shape...)
	meanCos := 0.0
	inv := 1.0 / float64(batch)
	for i := 0; i < batch; i++ {
		av := a.Data[i*dim : (i+1)*dim]
		bv := b.Data[i*dim : (i+1)*dim]
		dot, na2, nb2 := 0.0, 0.0, 0.0
		for j := 0; j < dim; j++ {
			dot += av[j] * bv[j]
			na2 += av[j] * av[j]
			nb2 += bv[j] * bv[j]
		}
		na := math.Sqrt(na2)
		nb := math.Sqrt(nb2)
		if na < eps {
			na = eps
		}
		if nb < eps {
			nb = eps
		}
		cos := dot / (na * nb)
		meanCos += cos * inv

		// d(1-mean cos)/db = -(a/(|a||b|) - cos·b/|b|²)/batch
		gv := grad.Data[i*dim : (i+1)*dim]
		for j := 0; j < dim; j++ {
			gv[j] = -inv * (av[j]/(na*nb) - cos*bv[j]/(nb*nb))
		}
	}
	return 1 - meanCos, grad, nil
}

// BinaryIndicator computes binary cross-entropy between sigmoid of the first
// logit channel and the origin flag (label < OriginClasses), plus the
// gradient with respect to the full logit tensor (zero outside channel 0).
func BinaryIndicator(logits *tensor.Tensor, labels []int) (float64, *tensor.Tensor, error) {
	if len(logits.Shape) != 2 {
		return 0, nil, fmt.Errorf("indicator: logits must be 2D, got %v", logits.Shape)
	}
	batch, k := logits.Shape[0], logits.Shape[1]
	if len(labels) != batch {
		return 0, nil, fmt.Errorf("indicator: %d labels for batch of %d", len(labels), batch)
	}

	loss := 0.0
	grad := tensor.New(batch, k)
	inv := 1.0 / float64(batch)
	for b := 0; b < batch; b++ {
		z := logits.Data[b*k]
		p := 1.0 / (1.0 + math.Exp(-z))
		flag := 0.0
		if labels[b] < OriginClasses {
			flag = 1.0
		}
		pc := p
		if pc < 1e-10 {
			pc = 1e-10
		}
		if pc > 1-1e-10 {
			pc = 1 - 1e-10
		}
		loss -= flag*math.Log(pc) + (1-flag)*math.Log(1-pc)
		grad.Data[b*k] = (p - flag) * inv
	}
	return loss * inv, grad, nil
}

// ComputeLoss evaluates the full composite objective over one batch and
// returns the weighted total, the individual terms and the gradients needed
// to drive the backward passes. negTemp is the temperature of the
// cross-branch similarity rows in the contrastive term.
func ComputeLoss(w LossWeights, negTemp float64,
	images, perturbed1, perturbed2 *tensor.Tensor,
	logitsClean, logitsP1, logitsP2 *tensor.Tensor,
	labels []int) (LossTerms, LossGrads, error) {

	var terms LossTerms
	var grads LossGrads

	clf, gClf, err := CrossEntropy(logitsP1, labels)
	if err != nil {
		return terms, grads, err
	}
	anti, gAnti, err := AntiClassification(logitsClean, labels)
	if err != nil {
		return terms, grads, err
	}
	sim1, gSim1, err := CosineDissimilarity(images, perturbed1)
	if err != nil {
		return terms, grads, err
	}
	ind, gInd, err := BinaryIndicator(logitsP2, labels)
	if err != nil {
		return terms, grads, err
	}
	sim2, gSim2, err := CosineDissimilarity(images, perturbed2)
	if err != nil {
		return terms, grads, err
	}
	ctr, gCtrClean, gCtrP1, gCtrP2, err := Contrastive(logitsClean, logitsP1, logitsP2, negTemp)
	if err != nil {
		return terms, grads, err
	}

	terms = LossTerms{
		Classification:     clf,
		AntiClassification: anti,
		Similarity1:        sim1,
		Indicator:          ind,
		Similarity2:        sim2,
		Contrastive:        ctr,
	}
	terms.Total = w.Classification*clf + w.AntiClassification*anti +
		w.Similarity1*sim1 + w.Indicator*ind + w.Similarity2*sim2 + w.Contrastive*ctr

	grads.LogitsClean = tensor.Scale(w.AntiClassification, gAnti)
	if err := tensor.AddInto(grads.LogitsClean, tensor.Scale(w.Contrastive, gCtrClean)); err != nil {
		return terms, grads, err
	}
	grads.LogitsPerturbed1 = tensor.Scale(w.Classification, gClf)
	if err := tensor.AddInto(grads.LogitsPerturbed1, tensor.Scale(w.Contrastive, gCtrP1)); err != nil {
		return terms, grads, err
	}
	grads.LogitsPerturbed2 = tensor.Scale(w.Indicator, gInd)
	if err := tensor.AddInto(grads.LogitsPerturbed2, tensor.Scale(w.Contrastive, gCtrP2)); err != nil {
		return terms, grads, err
	}
	grads.Perturbed1 = tensor.Scale(w.Similarity1, gSim1)
	grads.Perturbed2 = tensor.Scale(w.Similarity2, gSim2)
	return terms, grads, nil
}

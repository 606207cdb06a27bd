package layers

import (
	"fmt"
	"math"

	"edgeadv/nn"
	"edgeadv/tensor"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Linear is a fully-connected layer computing y = x*Wᵀ + b over a batch.
type Linear struct {
	inDim, outDim int

	W *nn.Param // [outDim, inDim]
	B *nn.Param // [outDim]

	training bool
	inputs   []*tensor.Tensor
}

// NewLinear creates a Linear layer with uniformly initialized weights.
func NewLinear(inDim, outDim int) *Linear {
	l := &Linear{
		inDim:    inDim,
		outDim:   outDim,
		W:        nn.NewParam(outDim, inDim),
		B:        nn.NewParam(outDim),
		training: true,
	}
	dist := distuv.Uniform{Min: -1 / math.Sqrt(float64(inDim)), Max: 1 / math.Sqrt(float64(inDim))}
	for i := range l.W.Value.Data {
		l.W.Value.Data[i] = dist.Rand()
	}
	return l
}

// InDim returns the input dimension.
func (l *Linear) InDim() int { return l.inDim }

// OutDim returns the output dimension.
func (l *Linear) OutDim() int { return l.outDim }

// Forward computes logits for a [batch, inDim] input.
func (l *Linear) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 2 || input.Shape[1] != l.inDim {
		return nil, fmt.Errorf("linear: input must be [batch, %d], got %v", l.inDim, input.Shape)
	}
	batch := input.Shape[0]

	if l.training {
		l.inputs = append(l.inputs, input)
	}

	x := mat.NewDense(batch, l.inDim, input.Data)
	w := mat.NewDense(l.outDim, l.inDim, l.W.Value.Data)

	output := tensor.New(batch, l.outDim)
	y := mat.NewDense(batch, l.outDim, output.Data)
	y.Mul(x, w.T())
	for b := 0; b < batch; b++ {
		for j := 0; j < l.outDim; j++ {
			output.Data[b*l.outDim+j] += l.B.Value.Data[j]
		}
	}
	return output, nil
}

// Backward pops the cached input, accumulates gradients and returns dL/dx.
func (l *Linear) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if len(l.inputs) == 0 {
		return nil, fmt.Errorf("linear: no cached input for backward pass")
	}
	input := l.inputs[len(l.inputs)-1]
	l.inputs = l.inputs[:len(l.inputs)-1]

	batch := input.Shape[0]
	if len(gradOut.Shape) != 2 || gradOut.Shape[0] != batch || gradOut.Shape[1] != l.outDim {
		return nil, fmt.Errorf("linear: gradOut must be [%d, %d], got %v", batch, l.outDim, gradOut.Shape)
	}

	x := mat.NewDense(batch, l.inDim, input.Data)
	g := mat.NewDense(batch, l.outDim, gradOut.Data)
	w := mat.NewDense(l.outDim, l.inDim, l.W.Value.Data)

	// dL/dW = gᵀ·x, accumulated.
	var gw mat.Dense
	gw.Mul(g.T(), x)
	gwData := gw.RawMatrix().Data
	for i := range l.W.Grad.Data {
		l.W.Grad.Data[i] += gwData[i]
	}

	// dL/db = column sums of g.
	for b := 0; b < batch; b++ {
		for j := 0; j < l.outDim; j++ {
			l.B.Grad.Data[j] += gradOut.Data[b*l.outDim+j]
		}
	}

	// dL/dx = g·W.
	inputGrad := tensor.New(batch, l.inDim)
	gi := mat.NewDense(batch, l.inDim, inputGrad.Data)
	gi.Mul(g, w)
	return inputGrad, nil
}

// Parameters returns the layer's weight and bias.
func (l *Linear) Parameters() []*nn.Param {
	return []*nn.Param{l.W, l.B}
}

// Training toggles input caching.
func (l *Linear) Training(on bool) {
	l.training = on
	if !on {
		l.inputs = nil
	}
}

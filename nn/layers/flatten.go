package layers

import (
	"fmt"

	"edgeadv/nn"
	"edgeadv/tensor"
)

// Flatten collapses every dimension after the batch dimension.
type Flatten struct {
	training bool
	shapes   [][]int
}

// NewFlatten creates a Flatten layer.
func NewFlatten() *Flatten {
	return &Flatten{training: true}
}

// Forward reshapes [batch, ...] into [batch, prod(...)].
func (f *Flatten) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) < 2 {
		return nil, fmt.Errorf("flatten: input must have a batch dimension, got %v", input.Shape)
	}
	if f.training {
		f.shapes = append(f.shapes, append([]int(nil), input.Shape...))
	}
	batch := input.Shape[0]
	rest := input.Numel() / batch
	out := tensor.New(batch, rest)
	copy(out.Data, input.Data)
	return out, nil
}

// Backward restores the cached input shape.
func (f *Flatten) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if len(f.shapes) == 0 {
		return nil, fmt.Errorf("flatten: no cached input for backward pass")
	}
	shape := f.shapes[len(f.shapes)-1]
	f.shapes = f.shapes[:len(f.shapes)-1]

	gradIn := tensor.New(shape...)
	if gradIn.Numel() != gradOut.Numel() {
		return nil, fmt.Errorf("flatten: gradOut has %d elements, cached input had %d",
			gradOut.Numel(), gradIn.Numel())
	}
	copy(gradIn.Data, gradOut.Data)
	return gradIn, nil
}

// Parameters returns nil; Flatten has no trainable state.
func (f *Flatten) Parameters() []*nn.Param { return nil }

// Training toggles shape caching.
func (f *Flatten) Training(on bool) {
	f.training = on
	if !on {
		f.shapes = nil
	}
}

package layers

import (
	"fmt"

	"edgeadv/nn"
	"edgeadv/tensor"
)

// ReLU applies max(0, x) elementwise.
type ReLU struct {
	training bool
	inputs   []*tensor.Tensor
}

// NewReLU creates a ReLU activation layer.
func NewReLU() *ReLU {
	return &ReLU{training: true}
}

// Forward applies the activation.
func (r *ReLU) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if r.training {
		r.inputs = append(r.inputs, input)
	}
	out := tensor.New(input.Shape...)
	for i, v := range input.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}
	return out, nil
}

// Backward gates the upstream gradient by the sign of the cached input.
func (r *ReLU) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if len(r.inputs) == 0 {
		return nil, fmt.Errorf("relu: no cached input for backward pass")
	}
	input := r.inputs[len(r.inputs)-1]
	r.inputs = r.inputs[:len(r.inputs)-1]

	if !input.SameShape(gradOut) {
		return nil, fmt.Errorf("relu: gradOut shape %v does not match input %v", gradOut.Shape, input.Shape)
	}
	gradIn := tensor.New(input.Shape...)
	for i := range gradIn.Data {
		if input.Data[i] > 0 {
			gradIn.Data[i] = gradOut.Data[i]
		}
	}
	return gradIn, nil
}

// Parameters returns nil; ReLU has no trainable state.
func (r *ReLU) Parameters() []*nn.Param { return nil }

// Training toggles input caching.
func (r *ReLU) Training(on bool) {
	r.training = on
	if !on {
		r.inputs = nil
	}
}

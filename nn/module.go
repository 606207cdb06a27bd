package nn

import (
	"edgeadv/tensor"
)

// Param is one trainable tensor together with its accumulated gradient.
// The owning layer allocates both; the optimizer borrows read/write access
// to Value and Grad only inside Step and ZeroGrad.
type Param struct {
	Value *tensor.Tensor
	Grad  *tensor.Tensor
}

// NewParam allocates a parameter and its gradient buffer with the same shape.
func NewParam(shape ...int) *Param {
	return &Param{
		Value: tensor.New(shape...),
		Grad:  tensor.New(shape...),
	}
}

// ParamSource exposes the trainable parameters of a network or layer.
type ParamSource interface {
	Parameters() []*Param
}

// Module defines a single layer/unit in the network.
//
// Forward pushes the activations it will need onto an internal cache stack
// when the module is in training mode; Backward pops that stack, so a
// sequence of forwards over different branches must be unwound by backwards
// in reverse order. Backward accumulates into parameter gradients; the
// optimizer's ZeroGrad clears them between steps.
type Module interface {
	Forward(input *tensor.Tensor) (*tensor.Tensor, error)
	// Backward computes gradients and propagates them.
	// It takes the gradient of the loss with respect to the module's output,
	// and returns the gradient of the loss with respect to the module's input.
	Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*Param
	// Training toggles cache pushes; evaluation runs with training off.
	Training(on bool)
}

// Sequential chains multiple Modules in order.
type Sequential struct {
	Layers []Module
}

// Forward applies each layer in sequence.
func (s *Sequential) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	out := x
	for _, layer := range s.Layers {
		out, err = layer.Forward(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Backward applies Backward in reverse order.
func (s *Sequential) Backward(grad *tensor.Tensor) (*tensor.Tensor, error) {
	var err error
	out := grad
	for i := len(s.Layers) - 1; i >= 0; i-- {
		out, err = s.Layers[i].Backward(out)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Parameters collects the parameters of all layers.
func (s *Sequential) Parameters() []*Param {
	var params []*Param
	for _, layer := range s.Layers {
		params = append(params, layer.Parameters()...)
	}
	return params
}

// Training switches every layer between training and evaluation mode.
func (s *Sequential) Training(on bool) {
	for _, layer := range s.Layers {
		layer.Training(on)
	}
}

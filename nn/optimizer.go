package nn

// SGD applies plain stochastic gradient descent to a fixed set of parameter
// collections. One instance drives the classifier and both generators so a
// single Step commits the whole combined update.
type SGD struct {
	lr     float64
	params []*Param
}

// NewSGD builds one optimizer over the given parameter collections.
func NewSGD(lr float64, sources ...ParamSource) *SGD {
	o := &SGD{lr: lr}
	for _, src := range sources {
		o.params = append(o.params, src.Parameters()...)
	}
	return o
}

// Step applies value -= lr*grad to every parameter.
func (o *SGD) Step() {
	for _, p := range o.params {
		for i := range p.Value.Data {
			p.Value.Data[i] -= o.lr * p.Grad.Data[i]
		}
	}
}

// ZeroGrad clears all accumulated gradients.
func (o *SGD) ZeroGrad() {
	for _, p := range o.params {
		p.Grad.Zero()
	}
}

// Params returns the borrowed parameters, mostly for tests and export.
func (o *SGD) Params() []*Param {
	return o.params
}

package model

import (
	"fmt"

	"edgeadv/nn"
	"edgeadv/nn/layers"
	"edgeadv/tensor"
)

// Epsilon scales generator outputs so perturbations start bounded in
// magnitude. Nothing clips the result afterwards; the bound is an
// initialization-scale effect, not a hard constraint.
const Epsilon = 0.05

// PerturbGen produces a bounded additive perturbation for an image,
// conditioned on its edge map. The convolutions read the edge map only; the
// image fixes the expected output shape. Two independently initialized
// instances are trained jointly with the classifier and share no weights.
type PerturbGen struct {
	net     *nn.Sequential
	eps     float64
	outChan int
}

// NewPerturbGen builds a generator emitting imgChannels perturbation
// channels from a single-channel edge map.
func NewPerturbGen(imgChannels int) *PerturbGen {
	return &PerturbGen{
		net: &nn.Sequential{Layers: []nn.Module{
			layers.NewConv2D(1, 8, 3, 1),
			layers.NewReLU(),
			layers.NewConv2D(8, imgChannels, 3, 1),
		}},
		eps:     Epsilon,
		outChan: imgChannels,
	}
}

// Forward returns a perturbation with the exact shape of images.
func (g *PerturbGen) Forward(images, edges *tensor.Tensor) (*tensor.Tensor, error) {
	if len(images.Shape) != 4 || len(edges.Shape) != 4 {
		return nil, fmt.Errorf("generator: images and edges must be 4D, got %v and %v",
			images.Shape, edges.Shape)
	}
	if edges.Shape[1] != 1 || edges.Shape[0] != images.Shape[0] ||
		edges.Shape[2] != images.Shape[2] || edges.Shape[3] != images.Shape[3] {
		return nil, fmt.Errorf("generator: edge shape %v does not match images %v",
			edges.Shape, images.Shape)
	}
	if images.Shape[1] != g.outChan {
		return nil, fmt.Errorf("generator: built for %d channels, images have %d",
			g.outChan, images.Shape[1])
	}
	out, err := g.net.Forward(edges)
	if err != nil {
		return nil, err
	}
	return tensor.Scale(g.eps, out), nil
}

// Backward accepts the gradient with respect to the perturbation and
// accumulates parameter gradients through the conv stack.
func (g *PerturbGen) Backward(gradPert *tensor.Tensor) error {
	_, err := g.net.Backward(tensor.Scale(g.eps, gradPert))
	return err
}

// Parameters returns the generator's own parameters.
func (g *PerturbGen) Parameters() []*nn.Param {
	return g.net.Parameters()
}

// Training switches cache pushes on or off.
func (g *PerturbGen) Training(on bool) {
	g.net.Training(on)
}

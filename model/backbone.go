// Package model assembles the trainable networks: the shared classifier
// backbone and the two perturbation generators.
package model

import (
	"fmt"

	"edgeadv/nn"
	"edgeadv/nn/layers"
	"edgeadv/tensor"
)

// Backbone is the capability the training loop needs from a classifier: a
// batched image-to-logits forward, the matching backward, and access to its
// parameters. Any concrete network satisfying it can be substituted.
type Backbone interface {
	Forward(images *tensor.Tensor) (*tensor.Tensor, error)
	Backward(gradLogits *tensor.Tensor) (*tensor.Tensor, error)
	Parameters() []*nn.Param
	Training(on bool)
}

// SmallCNN is the default backbone: a two-stage conv/pool trunk feeding a
// hidden linear layer, with a replaceable classification head.
type SmallCNN struct {
	trunk   *nn.Sequential
	head    *layers.Linear
	featDim int
	classes int
}

// NewSmallCNN builds a backbone for [batch, channels, h, w] inputs emitting
// `classes` logits. h and w must be divisible by 4 (two 2x pooling stages).
func NewSmallCNN(channels, h, w, classes int) (*SmallCNN, error) {
	if h%4 != 0 || w%4 != 0 {
		return nil, fmt.Errorf("model: input %dx%d must be divisible by 4", h, w)
	}
	featDim := 128
	trunk := &nn.Sequential{Layers: []nn.Module{
		layers.NewConv2D(channels, 16, 3, 1),
		layers.NewReLU(),
		layers.NewAvgPool2D(2),
		layers.NewConv2D(16, 32, 3, 1),
		layers.NewReLU(),
		layers.NewAvgPool2D(2),
		layers.NewFlatten(),
		layers.NewLinear(32*(h/4)*(w/4), featDim),
		layers.NewReLU(),
	}}
	return &SmallCNN{
		trunk:   trunk,
		head:    layers.NewLinear(featDim, classes),
		featDim: featDim,
		classes: classes,
	}, nil
}

// ReplaceHead swaps the final classification layer for a freshly initialized
// one emitting exactly `classes` logits. The trunk keeps its weights.
func (m *SmallCNN) ReplaceHead(classes int) {
	m.head = layers.NewLinear(m.featDim, classes)
	m.classes = classes
}

// Classes returns the size of the logit vector.
func (m *SmallCNN) Classes() int { return m.classes }

// Forward maps an image batch to a [batch, classes] logit batch.
func (m *SmallCNN) Forward(images *tensor.Tensor) (*tensor.Tensor, error) {
	feats, err := m.trunk.Forward(images)
	if err != nil {
		return nil, err
	}
	return m.head.Forward(feats)
}

// Backward propagates a logit gradient back to the input images.
func (m *SmallCNN) Backward(gradLogits *tensor.Tensor) (*tensor.Tensor, error) {
	gradFeats, err := m.head.Backward(gradLogits)
	if err != nil {
		return nil, err
	}
	return m.trunk.Backward(gradFeats)
}

// Parameters returns the trunk's and head's parameters.
func (m *SmallCNN) Parameters() []*nn.Param {
	return append(m.trunk.Parameters(), m.head.Parameters()...)
}

// Training switches the whole backbone between training and evaluation mode.
func (m *SmallCNN) Training(on bool) {
	m.trunk.Training(on)
	m.head.Training(on)
}

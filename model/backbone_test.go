package model

import (
	"testing"

	"edgeadv/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmallCNN_ForwardShape(t *testing.T) {
	m, err := NewSmallCNN(1, 8, 8, 20)
	require.NoError(t, err)

	logits, err := m.Forward(tensor.New(3, 1, 8, 8))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 20}, logits.Shape)
}

func TestSmallCNN_RejectsIndivisibleInput(t *testing.T) {
	_, err := NewSmallCNN(1, 6, 8, 10)
	assert.Error(t, err)
	_, err = NewSmallCNN(1, 8, 10, 10)
	assert.Error(t, err)
}

func TestSmallCNN_ReplaceHead(t *testing.T) {
	m, err := NewSmallCNN(1, 8, 8, 10)
	require.NoError(t, err)
	assert.Equal(t, 10, m.Classes())

	m.ReplaceHead(20)
	assert.Equal(t, 20, m.Classes())

	logits, err := m.Forward(tensor.New(1, 1, 8, 8))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 20}, logits.Shape)
}

func TestSmallCNN_BackwardShape(t *testing.T) {
	m, err := NewSmallCNN(1, 8, 8, 5)
	require.NoError(t, err)

	input := tensor.New(2, 1, 8, 8)
	for i := range input.Data {
		input.Data[i] = float64(i%11) * 0.1
	}
	logits, err := m.Forward(input)
	require.NoError(t, err)

	gradLogits := tensor.New(logits.Shape...)
	for i := range gradLogits.Data {
		gradLogits.Data[i] = 0.5
	}
	gradIn, err := m.Backward(gradLogits)
	require.NoError(t, err)
	assert.Equal(t, input.Shape, gradIn.Shape, "input gradient must match the image batch")
}

func TestSmallCNN_ThreeBranchUnwind(t *testing.T) {
	// Three forwards must be unwound by three backwards in reverse order,
	// with parameter gradients accumulating across the branches.
	m, err := NewSmallCNN(1, 8, 8, 4)
	require.NoError(t, err)

	input := tensor.New(1, 1, 8, 8)
	for i := range input.Data {
		input.Data[i] = float64(i % 5)
	}
	var logits *tensor.Tensor
	for i := 0; i < 3; i++ {
		logits, err = m.Forward(input)
		require.NoError(t, err)
	}

	grad := tensor.New(logits.Shape...)
	for i := range grad.Data {
		grad.Data[i] = 1
	}
	for i := 0; i < 3; i++ {
		_, err = m.Backward(grad)
		require.NoError(t, err)
	}

	// A fourth backward has no cached activations left.
	_, err = m.Backward(grad)
	assert.Error(t, err)
}

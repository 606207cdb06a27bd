package layers

import (
	"testing"

	"edgeadv/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinear_ForwardHandComputed(t *testing.T) {
	lin := NewLinear(2, 3)
	// W = [[1 2], [3 4], [5 6]], b = [0.1 0.2 0.3]
	copy(lin.W.Value.Data, []float64{1, 2, 3, 4, 5, 6})
	copy(lin.B.Value.Data, []float64{0.1, 0.2, 0.3})

	input := tensor.New(2, 2)
	copy(input.Data, []float64{1, 1, 2, 0})

	out, err := lin.Forward(input)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, out.Shape)
	expected := []float64{3.1, 7.2, 11.3, 2.1, 6.2, 10.3}
	for i, want := range expected {
		assert.InDelta(t, want, out.Data[i], 1e-12)
	}
}

func TestLinear_BackwardHandComputed(t *testing.T) {
	lin := NewLinear(2, 2)
	copy(lin.W.Value.Data, []float64{1, 2, 3, 4})
	lin.B.Value.Zero()

	input := tensor.New(1, 2)
	copy(input.Data, []float64{5, 7})
	_, err := lin.Forward(input)
	require.NoError(t, err)

	gradOut := tensor.New(1, 2)
	copy(gradOut.Data, []float64{1, 2})
	inputGrad, err := lin.Backward(gradOut)
	require.NoError(t, err)

	// dL/dW = gᵀx = [[5 7], [10 14]]
	assert.InDelta(t, 5.0, lin.W.Grad.Data[0], 1e-12)
	assert.InDelta(t, 7.0, lin.W.Grad.Data[1], 1e-12)
	assert.InDelta(t, 10.0, lin.W.Grad.Data[2], 1e-12)
	assert.InDelta(t, 14.0, lin.W.Grad.Data[3], 1e-12)
	// dL/db = g
	assert.InDelta(t, 1.0, lin.B.Grad.Data[0], 1e-12)
	assert.InDelta(t, 2.0, lin.B.Grad.Data[1], 1e-12)
	// dL/dx = g·W = [1*1+2*3, 1*2+2*4] = [7, 10]
	assert.InDelta(t, 7.0, inputGrad.Data[0], 1e-12)
	assert.InDelta(t, 10.0, inputGrad.Data[1], 1e-12)
}

func TestLinear_GradientAccumulates(t *testing.T) {
	lin := NewLinear(2, 2)
	input := tensor.New(1, 2)
	copy(input.Data, []float64{1, -2})
	gradOut := tensor.New(1, 2)
	copy(gradOut.Data, []float64{0.5, 1.5})

	_, err := lin.Forward(input)
	require.NoError(t, err)
	_, err = lin.Backward(gradOut)
	require.NoError(t, err)
	single := append([]float64(nil), lin.W.Grad.Data...)

	_, err = lin.Forward(input)
	require.NoError(t, err)
	_, err = lin.Backward(gradOut)
	require.NoError(t, err)

	for i := range single {
		assert.InDelta(t, 2*single[i], lin.W.Grad.Data[i], 1e-12,
			"second backward must add onto the first")
	}
}

func TestLinear_ShapeErrors(t *testing.T) {
	lin := NewLinear(4, 2)

	_, err := lin.Forward(tensor.New(1, 3))
	assert.Error(t, err)

	_, err = lin.Forward(tensor.New(2, 4))
	require.NoError(t, err)
	_, err = lin.Backward(tensor.New(2, 3))
	assert.Error(t, err)
}

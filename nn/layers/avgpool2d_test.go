package layers

import (
	"testing"

	"edgeadv/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvgPool2D_Forward(t *testing.T) {
	pool := NewAvgPool2D(2)
	input := tensor.New(1, 1, 2, 4)
	copy(input.Data, []float64{
		1, 2, 3, 4,
		5, 6, 7, 8,
	})

	out, err := pool.Forward(input)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 2}, out.Shape)
	assert.InDelta(t, 3.5, out.Data[0], 1e-12)
	assert.InDelta(t, 5.5, out.Data[1], 1e-12)
}

func TestAvgPool2D_Backward(t *testing.T) {
	pool := NewAvgPool2D(2)
	input := tensor.New(1, 1, 2, 2)
	_, err := pool.Forward(input)
	require.NoError(t, err)

	gradOut := tensor.New(1, 1, 1, 1)
	gradOut.Data[0] = 4
	grad, err := pool.Backward(gradOut)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 2}, grad.Shape)
	for i := 0; i < 4; i++ {
		assert.InDelta(t, 1.0, grad.Data[i], 1e-12, "gradient spread as gradOut/k²")
	}
}

func TestAvgPool2D_IndivisibleInput(t *testing.T) {
	pool := NewAvgPool2D(2)
	_, err := pool.Forward(tensor.New(1, 1, 3, 4))
	assert.Error(t, err)
}

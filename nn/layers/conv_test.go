package layers

import (
	"testing"

	"edgeadv/tensor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConv2D_Identity1x1(t *testing.T) {
	conv := NewConv2D(1, 1, 1, 0)
	conv.W.Value.Set(1.0, 0, 0, 0, 0)
	conv.B.Value.Set(0.0, 0)

	input := tensor.New(1, 1, 3, 3)
	for i := 0; i < 9; i++ {
		input.Data[i] = float64(i + 1)
	}

	output, err := conv.Forward(input)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 3, 3}, output.Shape)
	for i := 0; i < 9; i++ {
		assert.Equal(t, input.Data[i], output.Data[i], "Identity conv should preserve input")
	}
}

func TestConv2D_PaddedShape(t *testing.T) {
	conv := NewConv2D(3, 8, 3, 1)
	input := tensor.New(2, 3, 8, 8)

	output, err := conv.Forward(input)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 8, 8, 8}, output.Shape, "3x3 kernel with pad 1 keeps spatial size")
}

func TestConv2D_ChannelMismatch(t *testing.T) {
	conv := NewConv2D(3, 8, 3, 1)
	input := tensor.New(1, 1, 8, 8)

	_, err := conv.Forward(input)
	assert.Error(t, err)
}

func TestConv2D_GradientNumeric(t *testing.T) {
	conv := NewConv2D(1, 2, 3, 1)
	input := tensor.New(1, 1, 4, 4)
	for i := range input.Data {
		input.Data[i] = float64(i%7) * 0.3
	}

	// Loss = sum of outputs, so gradOut is all ones.
	forwardLoss := func() float64 {
		out, err := conv.Forward(input)
		require.NoError(t, err)
		// pop the cache entry the probe pushed
		_, err = conv.Backward(tensor.New(out.Shape...))
		require.NoError(t, err)
		sum := 0.0
		for _, v := range out.Data {
			sum += v
		}
		return sum
	}

	out, err := conv.Forward(input)
	require.NoError(t, err)
	gradOut := tensor.New(out.Shape...)
	for i := range gradOut.Data {
		gradOut.Data[i] = 1.0
	}
	conv.W.Grad.Zero()
	conv.B.Grad.Zero()
	inputGrad, err := conv.Backward(gradOut)
	require.NoError(t, err)

	const h = 1e-5
	for _, wi := range []int{0, 5, 11, 17} {
		orig := conv.W.Value.Data[wi]
		conv.W.Value.Data[wi] = orig + h
		up := forwardLoss()
		conv.W.Value.Data[wi] = orig - h
		down := forwardLoss()
		conv.W.Value.Data[wi] = orig
		numeric := (up - down) / (2 * h)
		assert.InDelta(t, numeric, conv.W.Grad.Data[wi], 1e-6, "weight %d", wi)
	}
	for _, ii := range []int{0, 7, 15} {
		orig := input.Data[ii]
		input.Data[ii] = orig + h
		up := forwardLoss()
		input.Data[ii] = orig - h
		down := forwardLoss()
		input.Data[ii] = orig
		numeric := (up - down) / (2 * h)
		assert.InDelta(t, numeric, inputGrad.Data[ii], 1e-6, "input %d", ii)
	}
}

func TestConv2D_CacheStackLIFO(t *testing.T) {
	conv := NewConv2D(1, 1, 1, 0)
	conv.W.Value.Set(2.0, 0, 0, 0, 0)

	a := tensor.New(1, 1, 2, 2)
	b := tensor.New(1, 1, 2, 2)
	for i := 0; i < 4; i++ {
		a.Data[i] = 1
		b.Data[i] = 10
	}
	_, err := conv.Forward(a)
	require.NoError(t, err)
	_, err = conv.Forward(b)
	require.NoError(t, err)

	gradOut := tensor.New(1, 1, 2, 2)
	for i := range gradOut.Data {
		gradOut.Data[i] = 1
	}

	// First backward must consume b's cache entry: dL/dW = sum(b) = 40.
	conv.W.Grad.Zero()
	_, err = conv.Backward(gradOut)
	require.NoError(t, err)
	assert.InDelta(t, 40.0, conv.W.Grad.Data[0], 1e-12)

	// Second backward consumes a's entry and accumulates: 40 + 4.
	_, err = conv.Backward(gradOut)
	require.NoError(t, err)
	assert.InDelta(t, 44.0, conv.W.Grad.Data[0], 1e-12)

	// Stack exhausted.
	_, err = conv.Backward(gradOut)
	assert.Error(t, err)
}

func TestConv2D_TrainingOffSkipsCache(t *testing.T) {
	conv := NewConv2D(1, 1, 3, 1)
	conv.Training(false)

	input := tensor.New(1, 1, 4, 4)
	out, err := conv.Forward(input)
	require.NoError(t, err)

	_, err = conv.Backward(tensor.New(out.Shape...))
	assert.Error(t, err, "eval-mode forward must not push a cache entry")
}

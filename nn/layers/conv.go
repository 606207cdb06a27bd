package layers

import (
	"fmt"
	"math"

	"edgeadv/nn"
	"edgeadv/tensor"

	"gonum.org/v1/gonum/stat/distuv"
)

// Conv2D is a 2D convolutional layer with square kernels, stride 1 and
// symmetric zero padding.
type Conv2D struct {
	inChan, outChan int
	k               int // kernel size (k x k)
	pad             int

	W *nn.Param // weights: [outChan, inChan, k, k]
	B *nn.Param // bias: [outChan]

	training bool

	// Cached inputs for backward passes, one entry per pending forward.
	inputs []*tensor.Tensor
}

// NewConv2D creates a Conv2D layer with uniformly initialized weights.
func NewConv2D(inChan, outChan, k, pad int) *Conv2D {
	c := &Conv2D{
		inChan:   inChan,
		outChan:  outChan,
		k:        k,
		pad:      pad,
		W:        nn.NewParam(outChan, inChan, k, k),
		B:        nn.NewParam(outChan),
		training: true,
	}
	fanIn := float64(inChan * k * k)
	dist := distuv.Uniform{Min: -1 / math.Sqrt(fanIn), Max: 1 / math.Sqrt(fanIn)}
	for i := range c.W.Value.Data {
		c.W.Value.Data[i] = dist.Rand()
	}
	return c
}

// OutputShape returns the spatial output dimensions for a given input size.
func (c *Conv2D) OutputShape(inH, inW int) (outH, outW int) {
	return inH + 2*c.pad - c.k + 1, inW + 2*c.pad - c.k + 1
}

// Forward performs the convolution on a [batch, inChan, H, W] input.
func (c *Conv2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("conv2d: input must be 4D [batch, chan, h, w], got %v", input.Shape)
	}
	batch, ch, inH, inW := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	if ch != c.inChan {
		return nil, fmt.Errorf("conv2d: expected %d input channels, got %d", c.inChan, ch)
	}
	outH, outW := c.OutputShape(inH, inW)
	if outH <= 0 || outW <= 0 {
		return nil, fmt.Errorf("conv2d: kernel %d too large for input %dx%d", c.k, inH, inW)
	}

	if c.training {
		c.inputs = append(c.inputs, input)
	}

	output := tensor.New(batch, c.outChan, outH, outW)
	for b := 0; b < batch; b++ {
		for oc := 0; oc < c.outChan; oc++ {
			for y := 0; y < outH; y++ {
				for x := 0; x < outW; x++ {
					sum := c.B.Value.Data[oc]
					for ic := 0; ic < c.inChan; ic++ {
						for dy := 0; dy < c.k; dy++ {
							iy := y + dy - c.pad
							if iy < 0 || iy >= inH {
								continue
							}
							for dx := 0; dx < c.k; dx++ {
								ix := x + dx - c.pad
								if ix < 0 || ix >= inW {
									continue
								}
								wIdx := ((oc*c.inChan+ic)*c.k+dy)*c.k + dx
								inIdx := ((b*c.inChan+ic)*inH+iy)*inW + ix
								sum += input.Data[inIdx] * c.W.Value.Data[wIdx]
							}
						}
					}
					output.Data[((b*c.outChan+oc)*outH+y)*outW+x] = sum
				}
			}
		}
	}
	return output, nil
}

// Backward pops the most recent cached input, accumulates weight and bias
// gradients and returns the gradient with respect to that input.
func (c *Conv2D) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if len(c.inputs) == 0 {
		return nil, fmt.Errorf("conv2d: no cached input for backward pass")
	}
	input := c.inputs[len(c.inputs)-1]
	c.inputs = c.inputs[:len(c.inputs)-1]

	if len(gradOut.Shape) != 4 {
		return nil, fmt.Errorf("conv2d: gradOut must be 4D, got %v", gradOut.Shape)
	}
	batch, inH, inW := input.Shape[0], input.Shape[2], input.Shape[3]
	outH, outW := gradOut.Shape[2], gradOut.Shape[3]
	if wantH, wantW := c.OutputShape(inH, inW); gradOut.Shape[0] != batch ||
		gradOut.Shape[1] != c.outChan || outH != wantH || outW != wantW {
		return nil, fmt.Errorf("conv2d: gradOut shape %v does not match forward output [%d %d %d %d]",
			gradOut.Shape, batch, c.outChan, wantH, wantW)
	}

	// Bias gradients: sum over batch and spatial positions.
	for oc := 0; oc < c.outChan; oc++ {
		for b := 0; b < batch; b++ {
			base := (b*c.outChan + oc) * outH * outW
			for i := 0; i < outH*outW; i++ {
				c.B.Grad.Data[oc] += gradOut.Data[base+i]
			}
		}
	}

	// Weight gradients.
	for oc := 0; oc < c.outChan; oc++ {
		for ic := 0; ic < c.inChan; ic++ {
			for dy := 0; dy < c.k; dy++ {
				for dx := 0; dx < c.k; dx++ {
					wIdx := ((oc*c.inChan+ic)*c.k+dy)*c.k + dx
					sum := 0.0
					for b := 0; b < batch; b++ {
						for y := 0; y < outH; y++ {
							iy := y + dy - c.pad
							if iy < 0 || iy >= inH {
								continue
							}
							for x := 0; x < outW; x++ {
								ix := x + dx - c.pad
								if ix < 0 || ix >= inW {
									continue
								}
								inIdx := ((b*c.inChan+ic)*inH+iy)*inW + ix
								gradIdx := ((b*c.outChan+oc)*outH+y)*outW + x
								sum += input.Data[inIdx] * gradOut.Data[gradIdx]
							}
						}
					}
					c.W.Grad.Data[wIdx] += sum
				}
			}
		}
	}

	// Input gradients (transposed convolution).
	inputGrad := tensor.New(input.Shape...)
	for b := 0; b < batch; b++ {
		for ic := 0; ic < c.inChan; ic++ {
			for y := 0; y < inH; y++ {
				for x := 0; x < inW; x++ {
					sum := 0.0
					for oc := 0; oc < c.outChan; oc++ {
						for dy := 0; dy < c.k; dy++ {
							oy := y - dy + c.pad
							if oy < 0 || oy >= outH {
								continue
							}
							for dx := 0; dx < c.k; dx++ {
								ox := x - dx + c.pad
								if ox < 0 || ox >= outW {
									continue
								}
								wIdx := ((oc*c.inChan+ic)*c.k+dy)*c.k + dx
								gradIdx := ((b*c.outChan+oc)*outH+oy)*outW + ox
								sum += c.W.Value.Data[wIdx] * gradOut.Data[gradIdx]
							}
						}
					}
					inputGrad.Data[((b*c.inChan+ic)*inH+y)*inW+x] = sum
				}
			}
		}
	}
	return inputGrad, nil
}

// Parameters returns the layer's weight and bias.
func (c *Conv2D) Parameters() []*nn.Param {
	return []*nn.Param{c.W, c.B}
}

// Training toggles input caching.
func (c *Conv2D) Training(on bool) {
	c.training = on
	if !on {
		c.inputs = nil
	}
}

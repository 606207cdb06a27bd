package layers

import (
	"fmt"

	"edgeadv/nn"
	"edgeadv/tensor"
)

// AvgPool2D downsamples each channel by averaging non-overlapping k×k windows.
type AvgPool2D struct {
	k int

	training bool
	shapes   [][]int // cached input shapes, one per pending forward
}

// NewAvgPool2D creates an average pooling layer with window size and stride k.
func NewAvgPool2D(k int) *AvgPool2D {
	return &AvgPool2D{k: k, training: true}
}

// Forward pools a [batch, chan, H, W] input; H and W must be divisible by k.
func (p *AvgPool2D) Forward(input *tensor.Tensor) (*tensor.Tensor, error) {
	if len(input.Shape) != 4 {
		return nil, fmt.Errorf("avgpool2d: input must be 4D, got %v", input.Shape)
	}
	batch, ch, inH, inW := input.Shape[0], input.Shape[1], input.Shape[2], input.Shape[3]
	if inH%p.k != 0 || inW%p.k != 0 {
		return nil, fmt.Errorf("avgpool2d: input %dx%d not divisible by window %d", inH, inW, p.k)
	}
	outH, outW := inH/p.k, inW/p.k

	if p.training {
		p.shapes = append(p.shapes, append([]int(nil), input.Shape...))
	}

	norm := 1.0 / float64(p.k*p.k)
	output := tensor.New(batch, ch, outH, outW)
	for b := 0; b < batch; b++ {
		for c := 0; c < ch; c++ {
			for y := 0; y < outH; y++ {
				for x := 0; x < outW; x++ {
					sum := 0.0
					for dy := 0; dy < p.k; dy++ {
						for dx := 0; dx < p.k; dx++ {
							iy := y*p.k + dy
							ix := x*p.k + dx
							sum += input.Data[((b*ch+c)*inH+iy)*inW+ix]
						}
					}
					output.Data[((b*ch+c)*outH+y)*outW+x] = sum * norm
				}
			}
		}
	}
	return output, nil
}

// Backward spreads each output gradient evenly over its pooling window.
func (p *AvgPool2D) Backward(gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if len(p.shapes) == 0 {
		return nil, fmt.Errorf("avgpool2d: no cached input for backward pass")
	}
	shape := p.shapes[len(p.shapes)-1]
	p.shapes = p.shapes[:len(p.shapes)-1]

	batch, ch, inH, inW := shape[0], shape[1], shape[2], shape[3]
	outH, outW := inH/p.k, inW/p.k
	if len(gradOut.Shape) != 4 || gradOut.Shape[0] != batch || gradOut.Shape[1] != ch ||
		gradOut.Shape[2] != outH || gradOut.Shape[3] != outW {
		return nil, fmt.Errorf("avgpool2d: gradOut shape %v does not match pooled output [%d %d %d %d]",
			gradOut.Shape, batch, ch, outH, outW)
	}

	norm := 1.0 / float64(p.k*p.k)
	gradIn := tensor.New(shape...)
	for b := 0; b < batch; b++ {
		for c := 0; c < ch; c++ {
			for y := 0; y < outH; y++ {
				for x := 0; x < outW; x++ {
					g := gradOut.Data[((b*ch+c)*outH+y)*outW+x] * norm
					for dy := 0; dy < p.k; dy++ {
						for dx := 0; dx < p.k; dx++ {
							iy := y*p.k + dy
							ix := x*p.k + dx
							gradIn.Data[((b*ch+c)*inH+iy)*inW+ix] = g
						}
					}
				}
			}
		}
	}
	return gradIn, nil
}

// Parameters returns nil; pooling has no trainable state.
func (p *AvgPool2D) Parameters() []*nn.Param { return nil }

// Training toggles shape caching.
func (p *AvgPool2D) Training(on bool) {
	p.training = on
	if !on {
		p.shapes = nil
	}
}

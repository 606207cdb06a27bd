// Package edge provides a deterministic, non-trainable edge extractor used
// to condition the perturbation generators. It has no parameters and no
// gradient tracking; its output is treated as a constant input downstream.
package edge

import (
	"fmt"
	"math"

	"edgeadv/tensor"
)

// Default hysteresis thresholds on the L1 gradient magnitude.
const (
	DefaultLowThreshold  = 100
	DefaultHighThreshold = 200
)

// Detector extracts a binary-like edge map from an image using channel-mean
// intensity, Sobel gradients, non-maximum suppression and double-threshold
// hysteresis.
type Detector struct {
	Low, High float64
}

// NewDetector returns a Detector with the default thresholds.
func NewDetector() *Detector {
	return &Detector{Low: DefaultLowThreshold, High: DefaultHighThreshold}
}

// Detect maps a [chan, H, W] image to a [1, H, W] edge map with values in
// {0, 1}. The intensity conversion casts to the 8-bit range the gradient
// operator expects; values outside [0, 255] wrap on conversion and are not
// corrected.
func (d *Detector) Detect(img *tensor.Tensor) (*tensor.Tensor, error) {
	if len(img.Shape) != 3 {
		return nil, fmt.Errorf("edge: image must be [chan, h, w], got %v", img.Shape)
	}
	ch, h, w := img.Shape[0], img.Shape[1], img.Shape[2]

	// Channel-mean intensity, cast to the operator's 8-bit range.
	gray := make([]float64, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			sum := 0.0
			for c := 0; c < ch; c++ {
				sum += img.Data[(c*h+y)*w+x]
			}
			gray[y*w+x] = float64(uint8(int(sum / float64(ch))))
		}
	}

	gx := make([]float64, h*w)
	gy := make([]float64, h*w)
	magnitude := make([]float64, h*w)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			gx[i] = gray[i-w+1] + 2*gray[i+1] + gray[i+w+1] -
				gray[i-w-1] - 2*gray[i-1] - gray[i+w-1]
			gy[i] = gray[i+w-1] + 2*gray[i+w] + gray[i+w+1] -
				gray[i-w-1] - 2*gray[i-w] - gray[i-w+1]
			magnitude[i] = math.Abs(gx[i]) + math.Abs(gy[i])
		}
	}

	// Non-maximum suppression along the quantized gradient direction.
	thin := make([]float64, h*w)
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			i := y*w + x
			m := magnitude[i]
			if m == 0 {
				continue
			}
			var a, b float64
			angle := math.Atan2(gy[i], gx[i]) * 180 / math.Pi
			if angle < 0 {
				angle += 180
			}
			switch {
			case angle < 22.5 || angle >= 157.5: // horizontal gradient
				a, b = magnitude[i-1], magnitude[i+1]
			case angle < 67.5: // diagonal /
				a, b = magnitude[i-w+1], magnitude[i+w-1]
			case angle < 112.5: // vertical gradient
				a, b = magnitude[i-w], magnitude[i+w]
			default: // diagonal \
				a, b = magnitude[i-w-1], magnitude[i+w+1]
			}
			if m >= a && m >= b {
				thin[i] = m
			}
		}
	}

	// Double threshold plus hysteresis: strong pixels seed a flood fill that
	// promotes 8-connected weak pixels.
	const (
		weak   = 1
		strong = 2
	)
	mark := make([]uint8, h*w)
	var stack []int
	for i, m := range thin {
		if m >= d.High {
			mark[i] = strong
			stack = append(stack, i)
		} else if m >= d.Low {
			mark[i] = weak
		}
	}
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		y, x := i/w, i%w
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				ny, nx := y+dy, x+dx
				if ny < 0 || ny >= h || nx < 0 || nx >= w {
					continue
				}
				j := ny*w + nx
				if mark[j] == weak {
					mark[j] = strong
					stack = append(stack, j)
				}
			}
		}
	}

	out := tensor.New(1, h, w)
	for i := range mark {
		if mark[i] == strong {
			out.Data[i] = 1
		}
	}
	return out, nil
}

// DetectBatch maps [batch, chan, H, W] images to [batch, 1, H, W] edge maps.
// Each image is processed independently.
func (d *Detector) DetectBatch(images *tensor.Tensor) (*tensor.Tensor, error) {
	if len(images.Shape) != 4 {
		return nil, fmt.Errorf("edge: batch must be [batch, chan, h, w], got %v", images.Shape)
	}
	batch, ch, h, w := images.Shape[0], images.Shape[1], images.Shape[2], images.Shape[3]
	out := tensor.New(batch, 1, h, w)
	img := tensor.New(ch, h, w)
	for b := 0; b < batch; b++ {
		copy(img.Data, images.Data[b*ch*h*w:(b+1)*ch*h*w])
		edges, err := d.Detect(img)
		if err != nil {
			return nil, err
		}
		copy(out.Data[b*h*w:(b+1)*h*w], edges.Data)
	}
	return out, nil
}

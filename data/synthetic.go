package data

import (
	"math/rand"

	"edgeadv/tensor"
)

// Synthetic generates n random images with uniform pixel intensities in
// [0, 255] and uniform labels in [0, classes). Useful for smoke runs and
// tests when no CSV sources are given.
func Synthetic(n, classes, channels, h, w int, rng *rand.Rand) *Dataset {
	images := make([]*tensor.Tensor, n)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		img := tensor.New(channels, h, w)
		for j := range img.Data {
			img.Data[j] = rng.Float64() * 255
		}
		images[i] = img
		labels[i] = rng.Intn(classes)
	}
	d, err := NewDataset(images, labels, classes)
	if err != nil {
		// Labels are generated in range; this cannot fail.
		panic(err)
	}
	return d
}

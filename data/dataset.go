// Package data supplies image batches with labels in a unified label space
// merged from two source datasets.
package data

import (
	"fmt"
	"math/rand"

	"edgeadv/tensor"
)

// Batch is one training unit: images stacked [batch, chan, h, w] and one
// integer label per image.
type Batch struct {
	Images *tensor.Tensor
	Labels []int
}

// Dataset is an in-memory list of [chan, h, w] images with labels in
// [0, Classes()).
type Dataset struct {
	images  []*tensor.Tensor
	labels  []int
	classes int
}

// NewDataset wraps images and labels; every label must lie in [0, classes).
func NewDataset(images []*tensor.Tensor, labels []int, classes int) (*Dataset, error) {
	if len(images) != len(labels) {
		return nil, fmt.Errorf("data: %d images but %d labels", len(images), len(labels))
	}
	for i, y := range labels {
		if y < 0 || y >= classes {
			return nil, fmt.Errorf("data: label %d at index %d outside [0, %d)", y, i, classes)
		}
	}
	return &Dataset{images: images, labels: labels, classes: classes}, nil
}

// Len returns the number of examples.
func (d *Dataset) Len() int { return len(d.images) }

// Classes returns the size of the label space.
func (d *Dataset) Classes() int { return d.classes }

// Label returns the label of example i.
func (d *Dataset) Label(i int) int { return d.labels[i] }

// Merge concatenates two datasets into one unified label space: examples
// from b keep their images but have their labels offset by a.Classes(), so
// the two source label sets never collide.
func Merge(a, b *Dataset) (*Dataset, error) {
	if a.Len() > 0 && b.Len() > 0 && !a.images[0].SameShape(b.images[0]) {
		return nil, fmt.Errorf("data: image shape mismatch: %v vs %v",
			a.images[0].Shape, b.images[0].Shape)
	}
	images := make([]*tensor.Tensor, 0, a.Len()+b.Len())
	labels := make([]int, 0, a.Len()+b.Len())
	images = append(images, a.images...)
	labels = append(labels, a.labels...)
	for i, img := range b.images {
		images = append(images, img)
		labels = append(labels, b.labels[i]+a.classes)
	}
	return &Dataset{images: images, labels: labels, classes: a.classes + b.classes}, nil
}

// Shuffle permutes the examples in place.
func (d *Dataset) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(d.images), func(i, j int) {
		d.images[i], d.images[j] = d.images[j], d.images[i]
		d.labels[i], d.labels[j] = d.labels[j], d.labels[i]
	})
}

// Batches splits the dataset into consecutive batches of at most batchSize
// examples. The final batch may be short.
func (d *Dataset) Batches(batchSize int) ([]Batch, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("data: batch size must be positive, got %d", batchSize)
	}
	if d.Len() == 0 {
		return nil, nil
	}
	shape := d.images[0].Shape
	if len(shape) != 3 {
		return nil, fmt.Errorf("data: images must be [chan, h, w], got %v", shape)
	}
	ch, h, w := shape[0], shape[1], shape[2]
	numBatches := (d.Len() + batchSize - 1) / batchSize
	batches := make([]Batch, 0, numBatches)
	for start := 0; start < d.Len(); start += batchSize {
		end := start + batchSize
		if end > d.Len() {
			end = d.Len()
		}
		n := end - start
		images := tensor.New(n, ch, h, w)
		labels := make([]int, n)
		for i := 0; i < n; i++ {
			img := d.images[start+i]
			if !img.SameShape(d.images[0]) {
				return nil, fmt.Errorf("data: image %d has shape %v, want %v", start+i, img.Shape, shape)
			}
			copy(images.Data[i*ch*h*w:(i+1)*ch*h*w], img.Data)
			labels[i] = d.labels[start+i]
		}
		batches = append(batches, Batch{Images: images, Labels: labels})
	}
	return batches, nil
}

package data

import (
	"math/rand"
	"testing"

	"edgeadv/tensor"
)

func marked(n int, mark float64) *tensor.Tensor {
	img := tensor.New(1, 4, 4)
	img.Data[0] = mark
	return img
}

func TestNewDatasetLabelRange(t *testing.T) {
	images := []*tensor.Tensor{marked(0, 1)}
	if _, err := NewDataset(images, []int{10}, 10); err == nil {
		t.Fatal("expected error for out-of-range label")
	}
	if _, err := NewDataset(images, []int{-1}, 10); err == nil {
		t.Fatal("expected error for negative label")
	}
	if _, err := NewDataset(images, []int{0, 1}, 10); err == nil {
		t.Fatal("expected error for mismatched lengths")
	}
}

func TestMergeOffsetsLabels(t *testing.T) {
	a, err := NewDataset([]*tensor.Tensor{marked(0, 1), marked(1, 2)}, []int{0, 9}, 10)
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewDataset([]*tensor.Tensor{marked(2, 3)}, []int{4}, 10)
	if err != nil {
		t.Fatal(err)
	}

	merged, err := Merge(a, b)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Classes() != 20 {
		t.Fatalf("Classes = %d, want 20", merged.Classes())
	}
	if merged.Len() != 3 {
		t.Fatalf("Len = %d, want 3", merged.Len())
	}
	if merged.Label(0) != 0 || merged.Label(1) != 9 {
		t.Fatal("first source labels must stay unchanged")
	}
	if merged.Label(2) != 14 {
		t.Fatalf("second source label = %d, want 4 + 10", merged.Label(2))
	}
}

func TestMergeShapeMismatch(t *testing.T) {
	a, _ := NewDataset([]*tensor.Tensor{tensor.New(1, 4, 4)}, []int{0}, 2)
	b, _ := NewDataset([]*tensor.Tensor{tensor.New(3, 4, 4)}, []int{0}, 2)
	if _, err := Merge(a, b); err == nil {
		t.Fatal("expected error for differing image shapes")
	}
}

func TestBatchesStacking(t *testing.T) {
	images := make([]*tensor.Tensor, 5)
	labels := make([]int, 5)
	for i := range images {
		images[i] = marked(i, float64(i+1))
		labels[i] = i % 3
	}
	ds, err := NewDataset(images, labels, 3)
	if err != nil {
		t.Fatal(err)
	}

	batches, err := ds.Batches(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	if batches[2].Images.Shape[0] != 1 {
		t.Fatalf("final batch has %d images, want 1", batches[2].Images.Shape[0])
	}
	// The marker pixel of example i sits at the start of its slot.
	if batches[0].Images.Data[0] != 1 || batches[0].Images.Data[16] != 2 {
		t.Fatal("batch 0 images not stacked in order")
	}
	if batches[1].Labels[0] != 2 || batches[1].Labels[1] != 0 {
		t.Fatal("batch 1 labels misaligned")
	}
}

func TestShufflePreservesPairs(t *testing.T) {
	images := make([]*tensor.Tensor, 8)
	labels := make([]int, 8)
	for i := range images {
		images[i] = marked(i, float64(i))
		labels[i] = i
	}
	ds, err := NewDataset(images, labels, 8)
	if err != nil {
		t.Fatal(err)
	}

	ds.Shuffle(rand.New(rand.NewSource(1)))
	for i := 0; i < ds.Len(); i++ {
		if int(ds.images[i].Data[0]) != ds.Label(i) {
			t.Fatalf("image/label pairing broken at %d", i)
		}
	}
}

func TestSyntheticRanges(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ds := Synthetic(20, 5, 1, 4, 4, rng)
	if ds.Len() != 20 || ds.Classes() != 5 {
		t.Fatalf("Len = %d Classes = %d", ds.Len(), ds.Classes())
	}
	for i := 0; i < ds.Len(); i++ {
		if ds.Label(i) < 0 || ds.Label(i) >= 5 {
			t.Fatalf("label %d out of range", ds.Label(i))
		}
		for _, v := range ds.images[i].Data {
			if v < 0 || v > 255 {
				t.Fatalf("pixel %g outside [0, 255]", v)
			}
		}
	}
}

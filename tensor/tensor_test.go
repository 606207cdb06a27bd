package tensor

import "testing"

func TestNewShape(t *testing.T) {
	t1 := New(2, 3)
	if len(t1.Data) != 6 {
		t.Fatalf("expected 6 elements, got %d", len(t1.Data))
	}
	if len(t1.Shape) != 2 || t1.Shape[0] != 2 || t1.Shape[1] != 3 {
		t.Fatalf("unexpected shape: %v", t1.Shape)
	}
}

func TestAdd(t *testing.T) {
	a := &Tensor{Data: []float64{1, 2, 3}, Shape: []int{3}}
	b := &Tensor{Data: []float64{4, 5, 6}, Shape: []int{3}}
	c, err := Add(a, b)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{5, 7, 9}
	for i := range want {
		if c.Data[i] != want[i] {
			t.Errorf("at %d, got %f, want %f", i, c.Data[i], want[i])
		}
	}
}

func TestAddShapeMismatch(t *testing.T) {
	a := New(2, 2)
	b := New(4)
	if _, err := Add(a, b); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestAddInto(t *testing.T) {
	a := &Tensor{Data: []float64{1, 2}, Shape: []int{2}}
	b := &Tensor{Data: []float64{3, 4}, Shape: []int{2}}
	if err := AddInto(a, b); err != nil {
		t.Fatal(err)
	}
	if a.Data[0] != 4 || a.Data[1] != 6 {
		t.Errorf("got %v, want [4 6]", a.Data)
	}
}

func TestScale(t *testing.T) {
	a := &Tensor{Data: []float64{1, -2, 3}, Shape: []int{3}}
	c := Scale(0.5, a)
	want := []float64{0.5, -1, 1.5}
	for i := range want {
		if c.Data[i] != want[i] {
			t.Errorf("at %d, got %f, want %f", i, c.Data[i], want[i])
		}
	}
	if a.Data[0] != 1 {
		t.Error("Scale must not mutate its input")
	}
}

func TestCloneIndependent(t *testing.T) {
	a := New(2, 2)
	a.Set(7, 1, 1)
	b := a.Clone()
	b.Set(9, 1, 1)
	if a.At(1, 1) != 7 {
		t.Errorf("clone mutated original: %f", a.At(1, 1))
	}
	if b.At(1, 1) != 9 {
		t.Errorf("clone did not take write: %f", b.At(1, 1))
	}
}

func TestAtSetRoundTrip(t *testing.T) {
	a := New(2, 3, 4)
	a.Set(3.5, 1, 2, 3)
	if got := a.At(1, 2, 3); got != 3.5 {
		t.Errorf("got %f, want 3.5", got)
	}
}

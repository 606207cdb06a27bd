package train

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"

	"edgeadv/data"
	"edgeadv/nn"
	"edgeadv/tensor"
	"edgeadv/utils"
)

// Metrics are the three evaluation accuracies: clean top-1, top-1 under the
// first perturbation, and origin-set agreement under the second.
type Metrics struct {
	CleanAccuracy     float64
	PerturbedAccuracy float64
	OriginAccuracy    float64
}

// Evaluate measures the three accuracies over a dataset without touching any
// weights or gradient caches. Origin agreement compares whether the argmax
// class and the true label fall on the same side of the origin boundary.
func (t *Trainer) Evaluate(ds *data.Dataset) (Metrics, error) {
	start := time.Now()
	defer func() { t.Stats.EvalTime += time.Since(start) }()

	t.backbone.Training(false)
	t.gen1.Training(false)
	t.gen2.Training(false)
	defer func() {
		t.backbone.Training(true)
		t.gen1.Training(true)
		t.gen2.Training(true)
	}()

	batches, err := ds.Batches(t.cfg.BatchSize)
	if err != nil {
		return Metrics{}, err
	}
	if len(batches) == 0 {
		return Metrics{}, fmt.Errorf("train: cannot evaluate an empty dataset")
	}

	var cleanHits, p1Hits, originHits, total int
	for _, batch := range batches {
		edges, err := t.detector.DetectBatch(batch.Images)
		if err != nil {
			return Metrics{}, err
		}
		delta1, err := t.gen1.Forward(batch.Images, edges)
		if err != nil {
			return Metrics{}, err
		}
		perturbed1, err := tensor.Add(batch.Images, delta1)
		if err != nil {
			return Metrics{}, err
		}
		delta2, err := t.gen2.Forward(batch.Images, edges)
		if err != nil {
			return Metrics{}, err
		}
		perturbed2, err := tensor.Add(batch.Images, delta2)
		if err != nil {
			return Metrics{}, err
		}

		logitsClean, err := t.backbone.Forward(batch.Images)
		if err != nil {
			return Metrics{}, err
		}
		logitsP1, err := t.backbone.Forward(perturbed1)
		if err != nil {
			return Metrics{}, err
		}
		logitsP2, err := t.backbone.Forward(perturbed2)
		if err != nil {
			return Metrics{}, err
		}

		k := logitsClean.Shape[1]
		for i, y := range batch.Labels {
			predClean := floats.MaxIdx(logitsClean.Data[i*k : (i+1)*k])
			predP1 := floats.MaxIdx(logitsP1.Data[i*k : (i+1)*k])
			predP2 := floats.MaxIdx(logitsP2.Data[i*k : (i+1)*k])
			if predClean == y {
				cleanHits++
			}
			if predP1 == y {
				p1Hits++
			}
			if (predP2 < nn.OriginClasses) == (y < nn.OriginClasses) {
				originHits++
			}
			total++
		}
	}

	m := Metrics{
		CleanAccuracy:     float64(cleanHits) / float64(total),
		PerturbedAccuracy: float64(p1Hits) / float64(total),
		OriginAccuracy:    float64(originHits) / float64(total),
	}
	if t.cfg.Verbose {
		fmt.Fprintf(utils.Output, "eval: clean %.2f%%, perturbed %.2f%%, origin %.2f%%\n",
			m.CleanAccuracy*100, m.PerturbedAccuracy*100, m.OriginAccuracy*100)
	}
	return m, nil
}

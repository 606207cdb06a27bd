// Package train runs the joint optimization of the classifier backbone and
// the two edge-conditioned perturbation generators against the composite
// objective.
package train

import (
	"fmt"
	"math/rand"
	"time"

	"edgeadv/data"
	"edgeadv/edge"
	"edgeadv/model"
	"edgeadv/nn"
	"edgeadv/tensor"
	"edgeadv/utils"
)

// Config collects the training hyperparameters.
type Config struct {
	Epochs    int
	BatchSize int
	LR        float64
	LogEvery  int // batches between running-loss prints
	NegTemp   float64
	Weights   nn.LossWeights
	Seed      int64
	Verbose   bool
}

// DefaultConfig returns the canonical hyperparameters.
func DefaultConfig() Config {
	return Config{
		Epochs:    10,
		BatchSize: 32,
		LR:        0.01,
		LogEvery:  100,
		NegTemp:   nn.DefaultNegTemp,
		Weights:   nn.DefaultLossWeights(),
		Seed:      42,
		Verbose:   true,
	}
}

// Validate rejects configurations that cannot run.
func (c Config) Validate() error {
	if c.Epochs <= 0 {
		return fmt.Errorf("train: epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("train: batch size must be positive, got %d", c.BatchSize)
	}
	if c.LR <= 0 {
		return fmt.Errorf("train: learning rate must be positive, got %g", c.LR)
	}
	if c.LogEvery <= 0 {
		return fmt.Errorf("train: log interval must be positive, got %d", c.LogEvery)
	}
	if c.NegTemp <= 0 {
		return fmt.Errorf("train: negative temperature must be positive, got %g", c.NegTemp)
	}
	return nil
}

// Trainer owns the three networks, the edge extractor and one optimizer over
// the union of all trainable parameters, so one Step commits the combined
// update.
type Trainer struct {
	cfg      Config
	backbone model.Backbone
	gen1     *model.PerturbGen
	gen2     *model.PerturbGen
	detector *edge.Detector
	opt      *nn.SGD
	rng      *rand.Rand

	Stats utils.TimingStats
}

// NewTrainer wires the networks to a single SGD instance.
func NewTrainer(cfg Config, backbone model.Backbone, gen1, gen2 *model.PerturbGen) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Trainer{
		cfg:      cfg,
		backbone: backbone,
		gen1:     gen1,
		gen2:     gen2,
		detector: edge.NewDetector(),
		opt:      nn.NewSGD(cfg.LR, backbone, gen1, gen2),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Optimizer exposes the shared optimizer, mostly for tests and export.
func (t *Trainer) Optimizer() *nn.SGD { return t.opt }

// Step runs one combined update on a batch: edge extraction, the two
// perturbations, three forward passes through the shared backbone, the
// composite loss, and the three backward passes in reverse forward order so
// each pops its own cached activations. Parameter gradients accumulate
// across the branches and a single optimizer step applies them.
func (t *Trainer) Step(batch data.Batch) (nn.LossTerms, error) {
	var terms nn.LossTerms

	start := time.Now()
	edges, err := t.detector.DetectBatch(batch.Images)
	if err != nil {
		return terms, err
	}
	t.Stats.EdgeTime += time.Since(start)

	start = time.Now()
	delta1, err := t.gen1.Forward(batch.Images, edges)
	if err != nil {
		return terms, err
	}
	perturbed1, err := tensor.Add(batch.Images, delta1)
	if err != nil {
		return terms, err
	}
	delta2, err := t.gen2.Forward(batch.Images, edges)
	if err != nil {
		return terms, err
	}
	perturbed2, err := tensor.Add(batch.Images, delta2)
	if err != nil {
		return terms, err
	}

	logitsClean, err := t.backbone.Forward(batch.Images)
	if err != nil {
		return terms, err
	}
	logitsP1, err := t.backbone.Forward(perturbed1)
	if err != nil {
		return terms, err
	}
	logitsP2, err := t.backbone.Forward(perturbed2)
	if err != nil {
		return terms, err
	}
	t.Stats.ForwardPassTime += time.Since(start)

	start = time.Now()
	terms, grads, err := nn.ComputeLoss(t.cfg.Weights, t.cfg.NegTemp,
		batch.Images, perturbed1, perturbed2,
		logitsClean, logitsP1, logitsP2, batch.Labels)
	if err != nil {
		return terms, err
	}
	t.Stats.LossComputationTime += time.Since(start)

	start = time.Now()
	t.opt.ZeroGrad()

	// Backward in reverse forward order: each pass pops the matching cached
	// activations off the layer stacks.
	gIn2, err := t.backbone.Backward(grads.LogitsPerturbed2)
	if err != nil {
		return terms, err
	}
	if err := tensor.AddInto(gIn2, grads.Perturbed2); err != nil {
		return terms, err
	}
	if err := t.gen2.Backward(gIn2); err != nil {
		return terms, err
	}

	gIn1, err := t.backbone.Backward(grads.LogitsPerturbed1)
	if err != nil {
		return terms, err
	}
	if err := tensor.AddInto(gIn1, grads.Perturbed1); err != nil {
		return terms, err
	}
	if err := t.gen1.Backward(gIn1); err != nil {
		return terms, err
	}

	// The clean image is a constant leaf; only the parameter gradients matter.
	if _, err := t.backbone.Backward(grads.LogitsClean); err != nil {
		return terms, err
	}
	t.Stats.BackwardPassTime += time.Since(start)

	start = time.Now()
	t.opt.Step()
	t.Stats.UpdateTime += time.Since(start)

	return terms, nil
}

// Run trains for the configured number of epochs, reshuffling each epoch and
// evaluating on evalSet (when non-nil) at the end of every epoch. afterStep,
// if non-nil, is called once per batch (for progress reporting).
func (t *Trainer) Run(ds, evalSet *data.Dataset, afterStep func(epoch, step int, terms nn.LossTerms)) error {
	runStart := time.Now()
	t.backbone.Training(true)
	t.gen1.Training(true)
	t.gen2.Training(true)

	steps := 0
	for epoch := 1; epoch <= t.cfg.Epochs; epoch++ {
		ds.Shuffle(t.rng)
		batches, err := ds.Batches(t.cfg.BatchSize)
		if err != nil {
			return err
		}

		windowTotal := 0.0
		windowN := 0
		epochTotal := 0.0
		for i, batch := range batches {
			terms, err := t.Step(batch)
			if err != nil {
				return fmt.Errorf("train: epoch %d batch %d: %w", epoch, i, err)
			}
			steps++
			windowTotal += terms.Total
			windowN++
			epochTotal += terms.Total
			if afterStep != nil {
				afterStep(epoch, i, terms)
			}
			if windowN == t.cfg.LogEvery {
				if t.cfg.Verbose {
					fmt.Fprintf(utils.Output, "epoch %d batch %d/%d: avg loss %.4f\n",
						epoch, i+1, len(batches), windowTotal/float64(windowN))
				}
				windowTotal, windowN = 0, 0
			}
		}
		if t.cfg.Verbose {
			fmt.Fprintf(utils.Output, "epoch %d done: avg loss %.4f\n",
				epoch, epochTotal/float64(len(batches)))
		}
		if evalSet != nil {
			if _, err := t.Evaluate(evalSet); err != nil {
				return fmt.Errorf("train: epoch %d evaluation: %w", epoch, err)
			}
		}
	}

	t.Stats.TotalTime = time.Since(runStart)
	if t.cfg.Verbose {
		utils.PrintTimingStats(&t.Stats, steps)
	}
	return nil
}

// ExportWeights snapshots every trainable tensor of the three networks into
// a serializable bundle.
func (t *Trainer) ExportWeights() *utils.ModelWeights {
	weights := &utils.ModelWeights{
		Version: "1",
		Tensors: make(map[string]*utils.WeightData),
	}
	collect := func(prefix string, params []*nn.Param) {
		for i, p := range params {
			name := fmt.Sprintf("%s.%d", prefix, i)
			weights.Tensors[name] = utils.TensorToWeightData(name, p.Value)
		}
	}
	collect("backbone", t.backbone.Parameters())
	collect("gen1", t.gen1.Parameters())
	collect("gen2", t.gen2.Parameters())
	return weights
}

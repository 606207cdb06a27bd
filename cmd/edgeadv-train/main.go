// edgeadv-train: joint trainer for the classifier and the two
// edge-conditioned perturbation generators.
//
// Usage:
//
//	edgeadv-train --epochs=10 --lr=0.01 --batch=32 --samples=200
//	edgeadv-train --csv-a=mnist_train.csv --csv-b=fashion_train.csv
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/schollz/progressbar/v3"

	"edgeadv/data"
	"edgeadv/model"
	"edgeadv/nn"
	"edgeadv/train"
	"edgeadv/utils"
)

var (
	epochs     = flag.Int("epochs", 10, "Number of training epochs")
	batchSize  = flag.Int("batch", 32, "Batch size")
	learning   = flag.Float64("lr", 0.01, "Learning rate")
	logEvery   = flag.Int("log-every", 100, "Batches between running-loss prints")
	negTemp    = flag.Float64("neg-temp", nn.DefaultNegTemp, "Contrastive negative temperature")
	samples    = flag.Int("samples", 200, "Synthetic samples per source (when no CSVs given)")
	seed       = flag.Int64("seed", 42, "Random seed")
	verbose    = flag.Bool("verbose", true, "Verbose output")
	outputFile = flag.String("output", "", "Output weights file (JSON)")

	csvA     = flag.String("csv-a", "", "First source dataset (label-first CSV)")
	csvB     = flag.String("csv-b", "", "Second source dataset (label-first CSV)")
	classesA = flag.Int("classes-a", 10, "Class count of the first source")
	classesB = flag.Int("classes-b", 10, "Class count of the second source")
	channels = flag.Int("channels", 1, "Image channels")
	height   = flag.Int("height", 28, "Image height")
	width    = flag.Int("width", 28, "Image width")
)

func main() {
	flag.Parse()
	utils.Verbose = *verbose
	rng := rand.New(rand.NewSource(*seed))

	fmt.Println("╔══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                 Edge-Adversarial Co-Trainer                  ║")
	fmt.Println("╚══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nConfiguration:\n")
	fmt.Printf("  Epochs:        %d\n", *epochs)
	fmt.Printf("  Batch size:    %d\n", *batchSize)
	fmt.Printf("  Learning Rate: %.4f\n", *learning)
	fmt.Printf("  Neg Temp:      %.2f\n", *negTemp)
	fmt.Printf("  Image:         %dx%dx%d\n", *channels, *height, *width)
	fmt.Println()

	ds, err := loadData(rng)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading data: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Dataset: %d examples, %d classes\n", ds.Len(), ds.Classes())

	backbone, err := model.NewSmallCNN(*channels, *height, *width, ds.Classes())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building model: %v\n", err)
		os.Exit(1)
	}
	gen1 := model.NewPerturbGen(*channels)
	gen2 := model.NewPerturbGen(*channels)

	cfg := train.DefaultConfig()
	cfg.Epochs = *epochs
	cfg.BatchSize = *batchSize
	cfg.LR = *learning
	cfg.LogEvery = *logEvery
	cfg.NegTemp = *negTemp
	cfg.Seed = *seed
	cfg.Verbose = *verbose

	trainer, err := train.NewTrainer(cfg, backbone, gen1, gen2)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nStarting training...")
	batchesPerEpoch := (ds.Len() + *batchSize - 1) / *batchSize
	bar := progressbar.Default(int64(*epochs*batchesPerEpoch), "training")
	err = trainer.Run(ds, ds, func(epoch, step int, terms nn.LossTerms) {
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Training failed: %v\n", err)
		os.Exit(1)
	}

	if *outputFile != "" {
		fmt.Printf("\nSaving weights to %s...\n", *outputFile)
		if err := utils.SaveWeights(*outputFile, trainer.ExportWeights()); err != nil {
			fmt.Fprintf(os.Stderr, "Error saving: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Done!")
	}
}

// loadData builds the merged two-source dataset: from CSVs when both paths
// are given, from synthetic samples otherwise.
func loadData(rng *rand.Rand) (*data.Dataset, error) {
	var a, b *data.Dataset
	var err error
	if *csvA != "" && *csvB != "" {
		a, err = data.LoadCSV(*csvA, *channels, *height, *width, *classesA)
		if err != nil {
			return nil, err
		}
		b, err = data.LoadCSV(*csvB, *channels, *height, *width, *classesB)
		if err != nil {
			return nil, err
		}
	} else if *csvA != "" || *csvB != "" {
		return nil, fmt.Errorf("both --csv-a and --csv-b must be given, or neither")
	} else {
		fmt.Printf("Generating %d synthetic samples per source...\n", *samples)
		a = data.Synthetic(*samples, *classesA, *channels, *height, *width, rng)
		b = data.Synthetic(*samples, *classesB, *channels, *height, *width, rng)
	}
	return data.Merge(a, b)
}

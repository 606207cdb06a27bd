package data

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"edgeadv/tensor"
)

// LoadCSV reads an MNIST-style CSV file: the first value on each line is the
// label, the rest are pixel intensities in [0, 255]. Pixels are kept at
// their native 8-bit scale because the edge operator works on that range.
func LoadCSV(filename string, channels, h, w, classes int) (*Dataset, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("data: opening %s: %w", filename, err)
	}
	defer file.Close()

	want := channels * h * w
	var images []*tensor.Tensor
	var labels []int
	r := csv.NewReader(bufio.NewReader(file))
	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("data: reading %s: %w", filename, err)
		}
		line++
		if len(record) != want+1 {
			return nil, fmt.Errorf("data: %s line %d has %d values, want %d", filename, line, len(record), want+1)
		}
		y, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, fmt.Errorf("data: %s line %d label: %w", filename, line, err)
		}
		img := tensor.New(channels, h, w)
		for i := 0; i < want; i++ {
			x, err := strconv.ParseFloat(record[i+1], 64)
			if err != nil {
				return nil, fmt.Errorf("data: %s line %d pixel %d: %w", filename, line, i, err)
			}
			img.Data[i] = x
		}
		images = append(images, img)
		labels = append(labels, y)
	}
	return NewDataset(images, labels, classes)
}

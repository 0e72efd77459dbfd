package rle

// Package rle implements the run-length mask encoding used by the compact
// wire format. Counts come in (offset, length) pairs, where offset is the
// 1-based index of the first set pixel in the flattened (row-major) mask,
// and length is the number of consecutive set pixels.

import (
	"errors"
	"fmt"
)

var (
	ErrOddCounts      = errors.New("run-length counts must come in (offset, length) pairs")
	ErrNegativeCount  = errors.New("run-length counts may not be negative")
	ErrSizeDimensions = errors.New("run-length size must be exactly [height, width] with positive integers")
)

// Decode expands counts into a height*width boolean mask.
func Decode(counts []int, height, width int) ([]bool, error) {
	if height <= 0 || width <= 0 {
		return nil, ErrSizeDimensions
	}
	if len(counts)%2 != 0 {
		return nil, ErrOddCounts
	}
	mask := make([]bool, height*width)
	for i := 0; i < len(counts); i += 2 {
		offset, length := counts[i], counts[i+1]
		if offset < 0 || length < 0 {
			return nil, ErrNegativeCount
		}
		// offset is 1-based
		start := offset - 1
		if start < 0 || start+length > len(mask) {
			return nil, fmt.Errorf("run (%v,%v) exceeds mask of %v pixels", offset, length, len(mask))
		}
		for j := start; j < start+length; j++ {
			mask[j] = true
		}
	}
	return mask, nil
}

// Encode is the inverse of Decode. Runs are emitted in ascending order, so
// Encode(Decode(counts)) == counts for any canonical input.
func Encode(mask []bool) []int {
	counts := []int{}
	i := 0
	for i < len(mask) {
		if !mask[i] {
			i++
			continue
		}
		start := i
		for i < len(mask) && mask[i] {
			i++
		}
		counts = append(counts, start+1, i-start)
	}
	return counts
}

package domain

import (
	"fmt"
	"math"
)

// ValidateVector checks that v has exactly dims components and that every
// component is finite.
func ValidateVector(v []float32, dims int) error {
	if len(v) != dims {
		return &SchemaMismatchError{Expected: dims, Got: len(v)}
	}
	for i, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Errorf("%w: component %d is %v", ErrInvalidVector, i, x)
		}
	}
	return nil
}

// ValidateVectors runs ValidateVector over vs, reporting the position of the
// first bad vector.
func ValidateVectors(vs [][]float32, dims int) error {
	for i, v := range vs {
		if err := ValidateVector(v, dims); err != nil {
			if sm, ok := err.(*SchemaMismatchError); ok {
				sm.Position = i
				return sm
			}
			return fmt.Errorf("vector %d: %w", i, err)
		}
	}
	return nil
}

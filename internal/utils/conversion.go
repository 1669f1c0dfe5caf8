/*
This file contains helpers for moving between binary floats (used for scores
and rates) and fixed-point decimals (used for money).
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrNotFinite        = errors.New("value is not finite")
	ErrNegativeAmount   = errors.New("amount is negative")
	ErrConversionFailed = errors.New("conversion failed")
)

// Float64ToDec converts a float64 USD amount into a fixed-point decimal.
// The value goes through a string so binary float noise never reaches the
// decimal representation.
func Float64ToDec(amount float64) (sdkmath.LegacyDec, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %f", ErrNotFinite, amount)
	}

	dec, err := sdkmath.LegacyNewDecFromStr(strconv.FormatFloat(amount, 'f', 6, 64))
	if err != nil {
		return sdkmath.LegacyDec{}, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	return dec, nil
}

// DecToFloat64 converts a fixed-point decimal to float64 for score math.
func DecToFloat64(dec sdkmath.LegacyDec) (float64, error) {
	if dec.IsNil() {
		return 0, fmt.Errorf("%w: decimal is nil", ErrConversionFailed)
	}
	f, err := dec.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, f)
	}
	return f, nil
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

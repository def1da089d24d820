package core

import (
	"math/big"
	"regexp"
)

var (
	addressPattern   = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	signaturePattern = regexp.MustCompile(`^0x[a-fA-F0-9]{130}$`)
)

// ValidateAddress checks the spec.md §6 address shape and returns the
// lower-cased form ready for storage/comparison.
func ValidateAddress(field, value string) (string, *Error) {
	if !addressPattern.MatchString(value) {
		return "", NewError(KindValidation, field+" must match 0x[a-fA-F0-9]{40}")
	}
	return NormalizeAddress(value), nil
}

// ValidateSignature checks the spec.md §6 signature shape.
func ValidateSignature(field, value string) *Error {
	if !signaturePattern.MatchString(value) {
		return NewError(KindValidation, field+" must match 0x[a-fA-F0-9]{130}")
	}
	return nil
}

// ValidateOutcome parses "0" or "1" into an int outcome.
func ValidateOutcome(field, value string) (int, *Error) {
	switch value {
	case "0":
		return 0, nil
	case "1":
		return 1, nil
	default:
		return 0, NewError(KindValidation, field+` must be "0" or "1"`)
	}
}

// ValidateDecimalBigInt parses a non-negative arbitrary-precision decimal
// string, per spec.md §6's "numeric fields ... serialized as decimal
// strings at the API boundary".
func ValidateDecimalBigInt(field, value string) (*big.Int, *Error) {
	n, ok := new(big.Int).SetString(value, 10)
	if !ok || n.Sign() < 0 {
		return nil, NewError(KindValidation, field+" must be a non-negative decimal integer")
	}
	return n, nil
}

// ValidateThresholdPercent checks the 51-99 bound from spec.md §3.
func ValidateThresholdPercent(field string, value int) *Error {
	if value < 51 || value > 99 {
		return NewError(KindValidation, field+" must be between 51 and 99")
	}
	return nil
}

// ValidateStatusFilter checks the 0..4 MarketStatus bound used by
// GET /api/markets?status=.
func ValidateStatusFilter(value int) *Error {
	if value < int(StatusOpen) || value > int(StatusCancelled) {
		return NewError(KindValidation, "status must be between 0 and 4")
	}
	return nil
}

// ValidatePagination bounds limit to [1,100] and offset to [0,∞).
func ValidatePagination(limit, offset int) (int, int, *Error) {
	if limit < 1 || limit > 100 {
		return 0, 0, NewError(KindValidation, "limit must be between 1 and 100")
	}
	if offset < 0 {
		return 0, 0, NewError(KindValidation, "offset must be non-negative")
	}
	return limit, offset, nil
}

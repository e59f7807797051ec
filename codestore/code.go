package codestore

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
)

const (
	minDigits = 4
	maxDigits = 10
)

var pow10 = [...]int64{1, 10, 100, 1000, 10000, 100000, 1000000, 10000000, 100000000, 1000000000, 10000000000}

// NewCode returns a fixed-width numeric code drawn uniformly from
// [10^(digits-1), 10^digits-1], e.g. 100000..999999 for six digits.
func NewCode(digits int) (string, error) {
	if digits < minDigits || digits > maxDigits {
		return "", errors.New("invalid code digits")
	}

	low := pow10[digits-1]
	span := big.NewInt(pow10[digits] - low)

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", err
	}

	code := fmt.Sprintf("%0*d", digits, low+n.Int64())
	if len(code) != digits {
		return "", fmt.Errorf("invalid code generation length")
	}
	return code, nil
}

// IsNumeric reports whether s is non-empty and made of ASCII digits only.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

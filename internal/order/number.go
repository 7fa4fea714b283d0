package order

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

var numberPattern = regexp.MustCompile(`^[A-Z][0-9]{6}$`)

// NewNumber generates a customer-facing order number: one uppercase letter
// followed by six digits.
func NewNumber() (string, error) {
	letter, err := rand.Int(rand.Reader, big.NewInt(26))
	if err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	digits, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	return fmt.Sprintf("%c%06d", 'A'+byte(letter.Int64()), digits.Int64()), nil
}

// ValidNumber reports whether s matches the order number format.
func ValidNumber(s string) bool {
	return numberPattern.MatchString(s)
}

package codes

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Generator produces the short numeric secrets that gate fund release and
// pickup verification. It is an interface so tests can supply fixed values.
type Generator interface {
	SixDigits() (string, error)
}

// CryptoGenerator draws from crypto/rand. Codes authorize irreversible money
// movement, so a guessable source is not acceptable.
type CryptoGenerator struct{}

func NewCryptoGenerator() *CryptoGenerator {
	return &CryptoGenerator{}
}

// SixDigits returns a uniformly random code in [000000, 999999], zero-padded
// and kept as a string so leading zeros survive storage and comparison.
func (g *CryptoGenerator) SixDigits() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

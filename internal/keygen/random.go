package keygen

import (
	"crypto/rand"
	"math/big"
)

// Symbols used for random keys
const randomSymbols = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Random draws keys uniformly from an alphanumeric alphabet
type Random struct {
	symbols string
	length  int
}

// NewRandom creates a random key generator
func NewRandom(length int) *Random {
	return &Random{symbols: randomSymbols, length: length}
}

// Generate returns a fresh random key not in attempted
func (r *Random) Generate(attempted map[string]struct{}) (string, error) {
	return GeneratorFunc(r.draw).Generate(attempted)
}

func (r *Random) draw() (string, error) {
	return drawFrom(r.symbols, r.length)
}

// drawFrom picks length symbols with crypto/rand
func drawFrom(symbols string, length int) (string, error) {
	result := make([]byte, length)
	symbolsLen := big.NewInt(int64(len(symbols)))

	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, symbolsLen)
		if err != nil {
			return "", err
		}
		result[i] = symbols[n.Int64()]
	}

	return string(result), nil
}

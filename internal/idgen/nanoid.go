package idgen

import (
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	DefaultNanoIDSize     = 21
	DefaultNanoIDAlphabet = "_-0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

type NanoIDGenerator struct {
	size     int
	alphabet string
}

// NewNanoIDGenerator falls back to the defaults for a zero size or empty
// alphabet.
func NewNanoIDGenerator(size int, alphabet string) (*NanoIDGenerator, error) {
	if size == 0 {
		size = DefaultNanoIDSize
	}
	if alphabet == "" {
		alphabet = DefaultNanoIDAlphabet
	}
	if size < 1 || size > 256 {
		return nil, fmt.Errorf("nanoid size must be between 1 and 256, got %d", size)
	}
	if len(alphabet) < 2 {
		return nil, fmt.Errorf("nanoid alphabet must have at least 2 characters, got %d", len(alphabet))
	}
	return &NanoIDGenerator{size: size, alphabet: alphabet}, nil
}

func (g *NanoIDGenerator) Generate() (string, error) {
	id, err := gonanoid.Generate(g.alphabet, g.size)
	if err != nil {
		return "", fmt.Errorf("failed to generate NanoID: %w", err)
	}
	return id, nil
}

package idgen

import (
	"fmt"

	"github.com/nrednav/cuid2"
)

const DefaultCUID2Length = 24

type CUID2Generator struct {
	generate func() string
}

// NewCUID2Generator accepts lengths between 2 and 32; zero means the default.
func NewCUID2Generator(length int) (*CUID2Generator, error) {
	if length == 0 {
		length = DefaultCUID2Length
	}
	if length < 2 || length > 32 {
		return nil, fmt.Errorf("cuid2 length must be between 2 and 32, got %d", length)
	}
	gen, err := cuid2.Init(cuid2.WithLength(length))
	if err != nil {
		return nil, fmt.Errorf("failed to init CUID2 generator: %w", err)
	}
	return &CUID2Generator{generate: gen}, nil
}

func (g *CUID2Generator) Generate() (string, error) {
	return g.generate(), nil
}

// Package idgen assigns message identifiers.
package idgen

import (
	"fmt"
	"strings"

	"github.com/weiawesome/chat-relay/internal/config"
)

// Generator produces message ids.
type Generator interface {
	Generate() (string, error)
}

// New returns the generator named by cfg.Strategy. ulid is the default.
func New(cfg config.IDConfig) (Generator, error) {
	switch strings.ToLower(cfg.Strategy) {
	case "", "ulid":
		return NewULIDGenerator(), nil
	case "uuid":
		return NewUUIDGenerator(), nil
	case "ksuid":
		return NewKSUIDGenerator(), nil
	case "nanoid":
		return NewNanoIDGenerator(cfg.NanoID.Size, cfg.NanoID.Alphabet)
	case "cuid2":
		return NewCUID2Generator(cfg.CUID2.Length)
	case "snowflake":
		return NewSnowflakeGenerator(cfg.Snowflake.MachineID, cfg.Snowflake.Epoch)
	default:
		return nil, fmt.Errorf("unknown id strategy: %s", cfg.Strategy)
	}
}

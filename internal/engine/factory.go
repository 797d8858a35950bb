package engine

import (
	"fmt"

	"github.com/loqalabs/loqa-voiceid/internal/config"
)

// New builds the Factory selected by cfg.Mode.
func New(cfg config.EngineConfig) (Factory, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockFactory(cfg)
	case "exec":
		return NewExecFactory(cfg)
	default:
		return nil, fmt.Errorf("unsupported engine mode %q", cfg.Mode)
	}
}

package proxy

import (
	"fmt"
	"log/slog"
)

// NewProvider creates a new proxy provider based on the config
func NewProvider(config Config, logger *slog.Logger) (Provider, error) {
	switch config.System {
	case SystemDataImpulse:
		return newDataImpulseProvider(config, logger)
	case SystemNone:
		return newNoneProvider(logger), nil
	default:
		return nil, fmt.Errorf("unsupported proxy system: %s", config.System)
	}
}

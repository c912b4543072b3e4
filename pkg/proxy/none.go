package proxy

import (
	"log/slog"

	"lead-submitter/pkg/models"
)

// NoneProvider produces direct-connection targets. Used when proxy
// configuration is incomplete: the pipeline still runs, it just cannot
// geo-target its egress.
type NoneProvider struct {
	logger *slog.Logger
}

func newNoneProvider(logger *slog.Logger) *NoneProvider {
	logger.Warn("proxy not configured; submissions will egress directly")
	return &NoneProvider{logger: logger}
}

func (p *NoneProvider) Name() string {
	return string(SystemNone)
}

// BuildTarget returns a target with no proxy server. The zip is still
// normalized so attempt records stay consistent.
func (p *NoneProvider) BuildTarget(zip string) (*models.ProxyTarget, error) {
	padded, err := padZip(zip)
	if err != nil {
		return nil, err
	}
	return &models.ProxyTarget{Zip: padded}, nil
}

package proxy

import (
	"fmt"
	"log/slog"
	"strings"

	"lead-submitter/pkg/models"
)

// DataImpulseProvider builds targets for the DataImpulse residential
// gateway. Geo-targeting rides on the username: appending ";zip.{zipcode}"
// asks the vendor for an exit node near that postal code. The encoding is
// load-bearing; change nothing about it without vendor confirmation.
type DataImpulseProvider struct {
	config Config
	logger *slog.Logger
}

func newDataImpulseProvider(config Config, logger *slog.Logger) (*DataImpulseProvider, error) {
	if config.Host == "" {
		return nil, fmt.Errorf("dataimpulse: proxy host is required")
	}
	if config.Port == "" {
		return nil, fmt.Errorf("dataimpulse: proxy port is required")
	}
	if config.Username == "" {
		return nil, fmt.Errorf("dataimpulse: proxy username is required")
	}
	if config.Password == "" {
		return nil, fmt.Errorf("dataimpulse: proxy password is required")
	}
	if strings.Contains(config.Username, ";") {
		return nil, fmt.Errorf("dataimpulse: base username must not contain a session directive")
	}
	if config.Scheme == "" {
		config.Scheme = "http"
	}

	return &DataImpulseProvider{
		config: config,
		logger: logger,
	}, nil
}

func (p *DataImpulseProvider) Name() string {
	return string(SystemDataImpulse)
}

// BuildTarget is pure construction; no I/O. The embedded zip directive is
// always exactly 5 digits, left zero-padded when the source data dropped
// leading zeros.
func (p *DataImpulseProvider) BuildTarget(zip string) (*models.ProxyTarget, error) {
	padded, err := padZip(zip)
	if err != nil {
		return nil, err
	}

	target := &models.ProxyTarget{
		Scheme:   p.config.Scheme,
		Host:     p.config.Host,
		Port:     p.config.Port,
		Username: fmt.Sprintf("%s;zip.%s", p.config.Username, padded),
		Password: p.config.Password,
		Zip:      padded,
	}

	p.logger.Debug("built proxy target",
		"username", target.Username,
		"server", target.Server())
	return target, nil
}

// padZip normalizes a zip to exactly 5 digits.
func padZip(zip string) (string, error) {
	z := strings.TrimSpace(zip)
	if z == "" || len(z) > 5 {
		return "", fmt.Errorf("invalid zip %q", zip)
	}
	for _, c := range z {
		if c < '0' || c > '9' {
			return "", fmt.Errorf("invalid zip %q", zip)
		}
	}
	for len(z) < 5 {
		z = "0" + z
	}
	return z, nil
}

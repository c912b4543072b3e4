package proxy

import "lead-submitter/pkg/models"

// System represents the type of proxy system
type System string

const (
	// SystemDataImpulse is the residential proxy vendor with per-zip
	// geo-targeting encoded in the username.
	SystemDataImpulse System = "dataimpulse"
	// SystemNone disables proxying; traffic egresses directly.
	SystemNone System = "none"
)

// Config represents the configuration for a proxy provider
type Config struct {
	System   System
	Host     string
	Port     string
	Username string // base username, without the zip directive
	Password string
	Scheme   string // defaults to "http"
}

// Provider builds per-attempt proxy targets for a given zip code.
type Provider interface {
	Name() string
	BuildTarget(zip string) (*models.ProxyTarget, error)
}

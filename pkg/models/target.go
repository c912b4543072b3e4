package models

import "fmt"

// ProxyTarget is the connection descriptor for one geo-targeted proxy
// session. It is built fresh for every attempt and never mutated; the zip
// directive is already embedded in Username by the proxy package.
type ProxyTarget struct {
	Scheme   string
	Host     string
	Port     string
	Username string
	Password string
	Zip      string
}

// Direct reports whether this target bypasses the proxy entirely (the
// "none" provider).
func (t *ProxyTarget) Direct() bool {
	return t.Host == ""
}

// URL renders the full vendor connection string:
//
//	scheme://{user};zip.{zipcode}:{pass}@{host}:{port}
//
// The encoding is a wire contract with the proxy vendor and must be
// reproduced exactly, so this is plain string assembly rather than net/url,
// which would percent-escape the userinfo.
func (t *ProxyTarget) URL() string {
	if t.Direct() {
		return ""
	}
	return fmt.Sprintf("%s://%s:%s@%s:%s", t.Scheme, t.Username, t.Password, t.Host, t.Port)
}

// Server renders the proxy address without credentials, in the form the
// browser launcher's --proxy-server flag expects.
func (t *ProxyTarget) Server() string {
	if t.Direct() {
		return ""
	}
	return fmt.Sprintf("%s://%s:%s", t.Scheme, t.Host, t.Port)
}

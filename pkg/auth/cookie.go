package auth

import (
	"net/url"
	"strings"
)

// CookieSettings are the role cookie's security settings derived from the
// console's public base URL.
type CookieSettings struct {
	// Secure restricts the cookie to HTTPS.
	Secure bool
	// Domain is the cookie's domain scope; empty means host-only.
	Domain string
}

// DeriveCookieSettings determines cookie settings from the base URL so
// one build works for localhost development and TLS deployments alike.
// An explicit configDomain overrides the derived domain.
func DeriveCookieSettings(baseURL, configDomain string) CookieSettings {
	if configDomain != "" {
		return CookieSettings{Secure: isHTTPS(baseURL), Domain: configDomain}
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || baseURL == "" {
		return CookieSettings{Secure: true}
	}

	hostname := parsed.Hostname()
	settings := CookieSettings{Secure: parsed.Scheme != "http"}

	switch {
	case hostname == "localhost" || hostname == "127.0.0.1":
		// Local development: host-only, plain HTTP allowed.
	case strings.HasSuffix(hostname, ".internal"):
		// Intranet deployments share the cookie across internal
		// subdomains so the console and backend can sit on different
		// hosts.
		settings.Domain = ".internal"
	default:
		// Unknown public hosts stay host-only.
	}
	return settings
}

// isHTTPS reports whether baseURL uses HTTPS. Empty or unparseable URLs
// count as HTTPS so the cookie fails closed.
func isHTTPS(baseURL string) bool {
	if baseURL == "" {
		return true
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return true
	}
	return parsed.Scheme != "http"
}

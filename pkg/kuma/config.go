package kuma

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// Config configures a Client session. Both the reconciler and the CLI build
// their own Config; the client holds no process-wide state.
type Config struct {
	// URL is the base URL of the Uptime Kuma instance. The socket.io path
	// suffix is appended automatically.
	URL string

	Username string
	Password string

	// MFAToken is a single-use 2FA code. MFASecret is a TOTP seed (base32 or
	// an otpauth:// URL) from which a fresh code is derived per login.
	MFAToken  string
	MFASecret string

	// AuthToken is a pre-obtained session token, tried before credentials.
	AuthToken string

	// Headers are extra HTTP headers in "key=value" form, sent on the
	// websocket upgrade and on plain HTTP requests.
	Headers []string

	ConnectTimeout time.Duration
	CallTimeout    time.Duration

	TLS TLSConfig
}

// TLSConfig holds the TLS policy for the connection to Uptime Kuma.
type TLSConfig struct {
	// Verify enables certificate verification. Default true.
	Verify *bool
	// CertPath points to a PEM bundle added to the root pool.
	CertPath string
}

func (c *Config) applyDefaults() {
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 30 * time.Second
	}
	if c.CallTimeout == 0 {
		c.CallTimeout = 30 * time.Second
	}
}

// socketURL returns the websocket endpoint for the configured base URL.
func (c *Config) socketURL() (*url.URL, error) {
	base, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid kuma url %q: %w", c.URL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid kuma url %q: scheme must be http or https", c.URL)
	}
	joined := base.JoinPath("socket.io").String() + "/"
	out, err := url.Parse(joined)
	if err != nil {
		return nil, err
	}
	switch out.Scheme {
	case "http":
		out.Scheme = "ws"
	case "https":
		out.Scheme = "wss"
	}
	out.RawQuery = "EIO=4&transport=websocket"
	return out, nil
}

func (c *Config) httpURL(path string) (string, error) {
	base, err := url.Parse(c.URL)
	if err != nil {
		return "", fmt.Errorf("invalid kuma url %q: %w", c.URL, err)
	}
	return base.JoinPath(path).String(), nil
}

func (c *Config) headerMap() http.Header {
	headers := http.Header{}
	for _, entry := range c.Headers {
		key, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		headers.Add(strings.TrimSpace(key), value)
	}
	return headers
}

func (c *Config) tlsClientConfig() (*tls.Config, error) {
	cfg := &tls.Config{}
	if c.TLS.Verify != nil && !*c.TLS.Verify {
		cfg.InsecureSkipVerify = true
	}
	if c.TLS.CertPath != "" {
		pem, err := os.ReadFile(c.TLS.CertPath)
		if err != nil {
			return nil, fmt.Errorf("reading tls cert %s: %w", c.TLS.CertPath, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("tls cert %s contains no usable certificates", c.TLS.CertPath)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

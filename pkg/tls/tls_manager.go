// Package tls secures the remote console with manual or Let's Encrypt
// certificates.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/antibyte/picobasic/pkg/configuration"
	"github.com/antibyte/picobasic/pkg/logger"

	"golang.org/x/crypto/acme/autocert"
)

// Config holds the [TLS] settings.
type Config struct {
	Enabled      bool
	LetsEncrypt  bool
	Domain       string
	Email        string
	CacheDir     string
	CertFile     string
	KeyFile      string
	RedirectHTTP bool
	// HTTPAddr serves ACME challenges and redirects when set.
	HTTPAddr string
}

// ConfigFromSettings reads the [TLS] section.
func ConfigFromSettings() Config {
	return Config{
		Enabled:      configuration.GetBool("TLS", "enable_tls", false),
		LetsEncrypt:  configuration.GetBool("TLS", "enable_letsencrypt", false),
		Domain:       configuration.GetString("TLS", "domain", ""),
		Email:        configuration.GetString("TLS", "letsencrypt_email", ""),
		CacheDir:     configuration.GetString("TLS", "cert_cache_dir", "./certs"),
		CertFile:     configuration.GetString("TLS", "cert_file", "./certs/server.crt"),
		KeyFile:      configuration.GetString("TLS", "key_file", "./certs/server.key"),
		RedirectHTTP: configuration.GetBool("TLS", "force_https_redirect", false),
		HTTPAddr:     configuration.GetString("TLS", "http_listen", ":80"),
	}
}

// Validate checks the settings needed by the selected mode.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.LetsEncrypt {
		if strings.TrimSpace(c.Domain) == "" {
			return errors.New("domain is required when Let's Encrypt is enabled")
		}
		if strings.TrimSpace(c.Email) == "" {
			return errors.New("letsencrypt_email is required when Let's Encrypt is enabled")
		}
		return nil
	}
	if _, err := os.Stat(c.CertFile); err != nil {
		return fmt.Errorf("certificate file: %w", err)
	}
	if _, err := os.Stat(c.KeyFile); err != nil {
		return fmt.Errorf("key file: %w", err)
	}
	return nil
}

// Manager provides the TLS setup of the console server.
type Manager struct {
	config      Config
	autocertMgr *autocert.Manager
	tlsConfig   *tls.Config
}

// NewManager validates config and prepares certificates.
func NewManager(config Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("TLS configuration validation failed: %w", err)
	}
	m := &Manager{config: config}
	if config.Enabled && config.LetsEncrypt {
		if err := m.initializeLetsEncrypt(); err != nil {
			return nil, fmt.Errorf("TLS initialization failed: %w", err)
		}
	}
	return m, nil
}

func (m *Manager) initializeLetsEncrypt() error {
	logger.Info(logger.AreaGeneral, "Initializing Let's Encrypt for domain: %s", m.config.Domain)

	if err := os.MkdirAll(m.config.CacheDir, 0700); err != nil {
		return fmt.Errorf("failed to create certificate cache directory: %w", err)
	}

	m.autocertMgr = &autocert.Manager{
		Cache:      autocert.DirCache(m.config.CacheDir),
		Prompt:     autocert.AcceptTOS,
		Email:      m.config.Email,
		HostPolicy: autocert.HostWhitelist(m.config.Domain, "www."+m.config.Domain),
	}

	m.tlsConfig = &tls.Config{
		GetCertificate: func(hello *tls.ClientHelloInfo) (*tls.Certificate, error) {
			if hello.ServerName == "" {
				hello.ServerName = m.config.Domain
			}
			cert, err := m.autocertMgr.GetCertificate(hello)
			if err != nil {
				logger.Warn(logger.AreaGeneral, "Failed to get certificate for %s: %v", hello.ServerName, err)
				return nil, err
			}
			return cert, nil
		},
		NextProtos: []string{"http/1.1", "acme-tls/1"},
		MinVersion: tls.VersionTLS12,
	}
	return nil
}

// Enabled reports whether the console is served over TLS.
func (m *Manager) Enabled() bool { return m.config.Enabled }

// Server returns an http.Server for addr using the TLS setup.
func (m *Manager) Server(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{Addr: addr, Handler: handler}
	if m.config.Enabled {
		srv.TLSConfig = m.tlsConfig
		if srv.TLSConfig == nil {
			srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
	}
	return srv
}

// ListenAndServe runs srv with or without TLS.
func (m *Manager) ListenAndServe(srv *http.Server) error {
	if !m.config.Enabled {
		return srv.ListenAndServe()
	}
	if m.autocertMgr != nil {
		return srv.ListenAndServeTLS("", "")
	}
	return srv.ListenAndServeTLS(m.config.CertFile, m.config.KeyFile)
}

// HTTPServer returns the plain HTTP server for ACME challenges and HTTPS
// redirects, or nil when none is needed.
func (m *Manager) HTTPServer(httpsAddr string) *http.Server {
	if !m.config.Enabled || (!m.config.LetsEncrypt && !m.config.RedirectHTTP) {
		return nil
	}
	var fallback http.Handler
	if m.config.RedirectHTTP {
		fallback = redirectHandler(httpsAddr)
	}
	handler := fallback
	if m.autocertMgr != nil {
		handler = m.autocertMgr.HTTPHandler(fallback)
	}
	return &http.Server{Addr: m.config.HTTPAddr, Handler: handler}
}

// redirectHandler sends every request to the HTTPS listener at httpsAddr.
func redirectHandler(httpsAddr string) http.Handler {
	_, port, _ := net.SplitHostPort(httpsAddr)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		target := "https://" + host
		if port != "" && port != "443" {
			target += ":" + port
		}
		http.Redirect(w, r, target+r.URL.RequestURI(), http.StatusMovedPermanently)
	})
}

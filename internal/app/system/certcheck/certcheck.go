// internal/app/system/certcheck/certcheck.go
// Package certcheck reports the expiry of the certificate a host serves.
package certcheck

import (
	"context"
	"crypto/tls"
	"net"
	"net/url"
	"strings"
	"time"
)

// CertInfo describes the leaf certificate presented by Host.
type CertInfo struct {
	Host      string    `json:"host"`
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	DaysLeft  int       `json:"days_left"`
	Issuer    string    `json:"issuer,omitempty"`
	IsValid   bool      `json:"is_valid"`
	Error     string    `json:"error,omitempty"`
}

// DialTimeout bounds the TLS handshake in Check.
var DialTimeout = 5 * time.Second

// Check dials hostOrURL on port 443 and inspects the leaf certificate.
// Loopback hosts are reported valid without dialing.
func Check(hostOrURL string) CertInfo {
	host := hostname(hostOrURL)
	switch {
	case host == "":
		return CertInfo{Host: hostOrURL, Error: "invalid host"}
	case loopback(host):
		return CertInfo{Host: host, IsValid: true, Error: "loopback host, not checked"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), DialTimeout)
	defer cancel()

	d := tls.Dialer{Config: &tls.Config{ServerName: host}}
	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, "443"))
	if err != nil {
		return CertInfo{Host: host, Error: "dial: " + err.Error()}
	}
	defer conn.Close()

	chain := conn.(*tls.Conn).ConnectionState().PeerCertificates
	if len(chain) == 0 {
		return CertInfo{Host: host, Error: "no peer certificate"}
	}
	leaf := chain[0]
	now := time.Now()
	return CertInfo{
		Host:      host,
		ExpiresAt: leaf.NotAfter,
		DaysLeft:  int(leaf.NotAfter.Sub(now) / (24 * time.Hour)),
		Issuer:    leaf.Issuer.CommonName,
		IsValid:   now.After(leaf.NotBefore) && now.Before(leaf.NotAfter),
	}
}

func hostname(s string) string {
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		return u.Hostname()
	}
	if h, _, err := net.SplitHostPort(s); err == nil {
		return h
	}
	return s
}

func loopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

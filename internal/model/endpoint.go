package model

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"
)

// ProtocolDirect marks the synthetic no-proxy endpoint.
const ProtocolDirect = "direct"

// Endpoint is an outbound egress point used to make fetches.
type Endpoint struct {
	ID             int64      `json:"id"`
	Host           string     `json:"host"`
	Port           int        `json:"port"`
	Protocol       string     `json:"protocol"`
	Username       string     `json:"username,omitempty"`
	Password       string     `json:"-"`
	IsActive       bool       `json:"is_active"`
	SuccessRate    float64    `json:"success_rate"`
	TotalRequests  int        `json:"total_requests"`
	FailedRequests int        `json:"failed_requests"`
	LastUsedAt     *time.Time `json:"last_used_at,omitempty"`
}

// DirectEndpoint returns the fallback used when no endpoint is active.
func DirectEndpoint() Endpoint {
	return Endpoint{Protocol: ProtocolDirect, IsActive: true, SuccessRate: 100}
}

// IsDirect reports whether the endpoint bypasses any proxy.
func (e Endpoint) IsDirect() bool {
	return e.Protocol == ProtocolDirect || e.Host == ""
}

// Key identifies the endpoint for client caching and logging.
func (e Endpoint) Key() string {
	if e.IsDirect() {
		return ProtocolDirect
	}
	return fmt.Sprintf("%s://%s", e.Protocol, net.JoinHostPort(e.Host, strconv.Itoa(e.Port)))
}

// URL returns the proxy URL, or nil for the direct endpoint.
func (e Endpoint) URL() *url.URL {
	if e.IsDirect() {
		return nil
	}
	u := &url.URL{
		Scheme: e.Protocol,
		Host:   net.JoinHostPort(e.Host, strconv.Itoa(e.Port)),
	}
	if e.Username != "" {
		u.User = url.UserPassword(e.Username, e.Password)
	}
	return u
}

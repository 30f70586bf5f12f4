// Package ratelimit bounds actions per identity per time window. The memory
// and redis backends implement the same Limiter interface and are
// interchangeable.
package ratelimit

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/jwalitptl/hiring-api/internal/config"
)

// Class is a named window specification, e.g. outbound-email: 10 per minute.
type Class struct {
	Name   string
	Limit  int
	Window time.Duration
}

// Built-in class names.
const (
	ClassOutboundEmail = "outbound-email"
	ClassAPI           = "api"
	ClassAuth          = "auth"
)

var (
	OutboundEmail = Class{Name: ClassOutboundEmail, Limit: 10, Window: time.Minute}
	API           = Class{Name: ClassAPI, Limit: 100, Window: time.Minute}
	Auth          = Class{Name: ClassAuth, Limit: 5, Window: 15 * time.Minute}
)

// Limiter admits or denies actions for an identity within a class. It must be
// safe for concurrent use. Implementations that depend on an external store
// fail open when the store is unavailable.
type Limiter interface {
	Allow(ctx context.Context, identity string, class Class) bool
	Remaining(ctx context.Context, identity string, class Class) int
}

// Classes resolves the configured window specs.
func Classes(cfg config.RateLimitConfig) (outbound, api, auth Class) {
	outbound = Class{Name: ClassOutboundEmail, Limit: cfg.OutboundEmail.Limit, Window: cfg.OutboundEmail.Window}
	api = Class{Name: ClassAPI, Limit: cfg.API.Limit, Window: cfg.API.Window}
	auth = Class{Name: ClassAuth, Limit: cfg.Auth.Limit, Window: cfg.Auth.Window}
	return outbound, api, auth
}

// NormalizeClientAddr reduces a client address to a stable identity: the first
// hop of a forwarded list, without port, lower-cased. IPv6 addresses are
// collapsed to their /64 so one host cannot rotate through its prefix.
func NormalizeClientAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if i := strings.IndexByte(addr, ','); i >= 0 {
		addr = strings.TrimSpace(addr[:i])
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	addr = strings.Trim(addr, "[]")

	ip := net.ParseIP(addr)
	if ip == nil {
		return strings.ToLower(addr)
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	return ip.Mask(net.CIDRMask(64, 128)).String()
}

func (c Class) usable() bool {
	return c.Limit > 0 && c.Window > 0
}

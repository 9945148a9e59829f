// Package metadata records the caller's address and user agent on the request context.
package metadata

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

type clientKey struct{}

// Client describes where a request came from.
type Client struct {
	IP        string
	UserAgent string
	Device    Device
}

// Device is what the User-Agent header says about the caller's software.
type Device struct {
	Browser string
	OS      string
	Mobile  bool
	Bot     bool
}

// ParseDevice reads browser, OS and form factor out of a User-Agent header.
// An empty header yields the zero Device.
func ParseDevice(header string) Device {
	if strings.TrimSpace(header) == "" {
		return Device{}
	}
	ua := useragent.New(header)
	browser, _ := ua.Browser()
	return Device{
		Browser: browser,
		OS:      ua.OS(),
		Mobile:  ua.Mobile(),
		Bot:     ua.Bot(),
	}
}

// ClientMetadata stores the caller's Client on the context. Forwarding headers
// are honoured only when trustProxy is set, i.e. behind a load balancer that
// overwrites them.
func ClientMetadata(trustProxy bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ua := r.Header.Get("User-Agent")
			c := Client{
				IP:        ClientIP(r, trustProxy),
				UserAgent: ua,
				Device:    ParseDevice(ua),
			}
			next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), c)))
		})
	}
}

// WithClient injects c into ctx. Tests use it directly.
func WithClient(ctx context.Context, c Client) context.Context {
	return context.WithValue(ctx, clientKey{}, c)
}

// GetClientIP returns the caller's address, or "" when unset.
func GetClientIP(ctx context.Context) string {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c.IP
}

// GetUserAgent returns the caller's User-Agent, or "" when unset.
func GetUserAgent(ctx context.Context) string {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c.UserAgent
}

// GetDevice returns the parsed User-Agent, or the zero Device when unset.
func GetDevice(ctx context.Context) Device {
	c, _ := ctx.Value(clientKey{}).(Client)
	return c.Device
}

// ClientIP picks the first X-Forwarded-For hop, then X-Real-IP, when
// trustProxy is set; otherwise the host part of RemoteAddr.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"
)

// Metadata is the request context attached to security events: where the
// request came from and a coarse device fingerprint.
type Metadata struct {
	ClientIP          string
	UserAgent         string
	DeviceFingerprint string
}

type metadataKey struct{}

// ClientMetadata extracts the client IP and a device fingerprint from the
// request and stores them in the context for handlers to attach to
// security_event payloads.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		md := Metadata{
			ClientIP:  clientIP(r),
			UserAgent: r.Header.Get("User-Agent"),
		}
		md.DeviceFingerprint = Fingerprint(md.UserAgent)
		ctx := context.WithValue(r.Context(), metadataKey{}, md)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetMetadata retrieves the client metadata from the context.
func GetMetadata(ctx context.Context) Metadata {
	md, ok := ctx.Value(metadataKey{}).(Metadata)
	if !ok {
		return Metadata{}
	}
	return md
}

// clientIP prefers proxy headers over the socket address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Fingerprint derives a coarse, stable device identifier from the User-Agent.
// Does NOT include the IP address (too volatile; recorded separately for
// contextual review).
func Fingerprint(userAgentString string) string {
	if userAgentString == "" {
		return ""
	}

	ua := useragent.New(userAgentString)
	browser, version := ua.Browser()

	majorVersion := "unknown"
	if version != "" {
		parts := strings.Split(version, ".")
		if len(parts) > 0 && parts[0] != "" {
			majorVersion = parts[0]
		}
	}

	os := ua.OS()
	platform := "desktop"
	if ua.Mobile() {
		platform = "mobile"
	}

	browser = strings.ToLower(strings.TrimSpace(browser))
	if browser == "" {
		browser = "unknown"
	}
	os = strings.ToLower(strings.TrimSpace(os))
	if os == "" {
		os = "unknown"
	}

	data := fmt.Sprintf("%s|%s|%s|%s", browser, majorVersion, os, platform)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

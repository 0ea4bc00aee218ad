// Package urlutil validates and joins the URLs the recorder is configured
// with: the gateway signalling endpoint, RTSP camera feeds and the classroom
// upload service.
package urlutil

import (
	"fmt"
	"net/url"
	"strings"
)

// NormalizeBaseURL trims whitespace, defaults a missing scheme to http://
// and drops any trailing slash so paths can be joined cleanly.
func NormalizeBaseURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return ""
	}

	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return strings.TrimSuffix(baseURL, "/")
}

// JoinPath appends path to baseURL with exactly one separating slash.
func JoinPath(baseURL, path string) string {
	if baseURL == "" {
		return path
	}

	baseURL = strings.TrimSuffix(baseURL, "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return baseURL + path
}

// IsRTSPURL reports whether u points at an RTSP camera feed. Both rtsp://
// and rtsps:// pass.
func IsRTSPURL(u string) bool {
	return strings.HasPrefix(u, "rtsp")
}

// IsPlainHTTPURL reports whether u begins with the literal http:// prefix.
// The upload backend only speaks plain HTTP, so https:// deliberately fails.
func IsPlainHTTPURL(u string) bool {
	return strings.HasPrefix(u, "http://")
}

// IsWebSocketURL reports whether u uses the ws:// or wss:// scheme.
func IsWebSocketURL(u string) bool {
	return strings.HasPrefix(u, "ws://") || strings.HasPrefix(u, "wss://")
}

// ValidateURL checks that u parses and uses one of the schemes the recorder
// can talk: http, https, rtsp, ws or wss.
func ValidateURL(u string) error {
	if u == "" {
		return fmt.Errorf("URL is required")
	}

	parsed, err := url.Parse(u)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	switch scheme := strings.ToLower(parsed.Scheme); scheme {
	case "http", "https", "rtsp", "ws", "wss":
		return nil
	case "":
		return fmt.Errorf("URL must include a scheme (http://, rtsp://, or ws://)")
	default:
		return fmt.Errorf("unsupported URL scheme: %s (supported: http, https, rtsp, ws, wss)", scheme)
	}
}

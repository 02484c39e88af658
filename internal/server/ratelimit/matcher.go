package ratelimit

import (
	"strings"
)

// MatchEndpoint finds the configuration for a request path and method.
// Exact paths win over prefixes; a configured path ending in "/" matches
// every path beneath it. GET /health is always unlimited.
func MatchEndpoint(path string, method string, configs []EndpointConfig) (EndpointConfig, bool) {
	if path == "/health" && method == "GET" {
		return EndpointConfig{Path: path, Method: method}, true
	}

	for _, c := range configs {
		if c.Path == path && c.Method == method {
			return c, true
		}
	}

	var best EndpointConfig
	found := false
	for _, c := range configs {
		if c.Method != method || !strings.HasSuffix(c.Path, "/") || !strings.HasPrefix(path, c.Path) {
			continue
		}
		// Longest prefix wins
		if !found || len(c.Path) > len(best.Path) {
			best, found = c, true
		}
	}
	return best, found
}

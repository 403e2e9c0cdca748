package ratelimit

import (
	"path"
)

// unlimited marks routes that are never limited.
var unlimited = map[string]bool{
	"GET /health":  true,
	"GET /metrics": true,
}

// MatchEndpoint returns the first config whose method and pattern match the
// request, a zero-limit config for unlimited routes, or nil.
func MatchEndpoint(urlPath string, method string, configs []EndpointConfig) *EndpointConfig {
	if unlimited[method+" "+urlPath] {
		return &EndpointConfig{}
	}

	for i := range configs {
		config := &configs[i]
		if config.Method != method {
			continue
		}
		if ok, err := path.Match(config.Pattern, urlPath); err == nil && ok {
			return config
		}
	}
	return nil
}

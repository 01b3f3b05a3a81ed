package relay

import (
	"slices"
	"strings"
)

const (
	DefaultCORSMethods = "POST, OPTIONS"
	DefaultCORSHeaders = "Content-Type"
)

// CORS is the cross-origin policy applied to every relay response.
//
//   - Origins nil, empty or ["*"] → Access-Control-Allow-Origin: *
//   - otherwise the request Origin is echoed back when listed, with Vary: Origin
type CORS struct {
	Origins []string
	Methods string
	Headers string
}

// DefaultCORS is the open policy: any origin, POST and OPTIONS, Content-Type.
func DefaultCORS() CORS {
	return CORS{
		Origins: []string{"*"},
		Methods: DefaultCORSMethods,
		Headers: DefaultCORSHeaders,
	}
}

func (c CORS) wildcard() bool {
	return len(c.Origins) == 0 || slices.Contains(c.Origins, "*")
}

// AllowOrigin returns the Access-Control-Allow-Origin value for a request
// from origin, or "" when the origin is not allowed.
func (c CORS) AllowOrigin(origin string) string {
	if c.wildcard() {
		return "*"
	}
	for _, o := range c.Origins {
		if strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}

// Apply writes the CORS headers for a request from origin through set.
func (c CORS) Apply(origin string, set func(key, value string)) {
	if allow := c.AllowOrigin(origin); allow != "" {
		set("Access-Control-Allow-Origin", allow)
	}
	if !c.wildcard() {
		set("Vary", "Origin")
	}

	methods := c.Methods
	if methods == "" {
		methods = DefaultCORSMethods
	}
	headers := c.Headers
	if headers == "" {
		headers = DefaultCORSHeaders
	}
	set("Access-Control-Allow-Methods", methods)
	set("Access-Control-Allow-Headers", headers)
}

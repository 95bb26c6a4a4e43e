// Package normalize gives relay URLs one canonical form so a relay added
// twice under different spellings is still one pool entry.
package normalize

import (
	"net/url"
	"strings"
)

// websocket schemes by the scheme given, bare host names dial wss.
var schemes = map[string]string{
	"wss":   "wss",
	"ws":    "ws",
	"https": "wss",
	"http":  "ws",
}

var defaultPorts = map[string]string{"wss": "443", "ws": "80"}

// URL returns the canonical websocket form of a relay address: lower case,
// http(s) mapped to ws(s), no default port, fragment or trailing slash. It
// is empty when u is not a usable relay address.
func URL(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	if u == "" {
		return ""
	}
	if !strings.Contains(u, "://") {
		u = "wss://" + u
	}
	p, err := url.Parse(u)
	if err != nil {
		return ""
	}
	var ok bool
	if p.Scheme, ok = schemes[p.Scheme]; !ok || p.Hostname() == "" {
		return ""
	}
	if port := p.Port(); port != "" && port == defaultPorts[p.Scheme] {
		p.Host = p.Hostname()
		if strings.Contains(p.Host, ":") {
			p.Host = "[" + p.Host + "]"
		}
	}
	p.Path = strings.TrimRight(p.Path, "/")
	p.RawPath = ""
	p.Fragment, p.RawFragment = "", ""
	p.User = nil
	return p.String()
}

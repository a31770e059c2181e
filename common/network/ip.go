package network

import (
	"net"
	"strings"
)

// NormalizeClientIP reduces a remote address to a stable limiter key for
// anonymous callers. Ports are stripped, IPv4-mapped IPv6 addresses collapse
// to their IPv4 form, and IPv6 addresses are truncated to their /64 so one
// host cannot rotate through a whole SLAAC range for fresh quota.
func NormalizeClientIP(remoteAddr string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.TrimSpace(host))
	if ip == nil {
		return host
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.String()
	}
	masked := ip.Mask(net.CIDRMask(64, 128))
	return masked.String() + "/64"
}

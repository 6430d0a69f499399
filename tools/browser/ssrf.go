package browser

import (
	"context"
	"net"
	"os"
	"strings"
)

// blockedV4 lists the IPv4 ranges an outbound fetch may never target
// unless the hostname is explicitly allowlisted.
var blockedV4 = []string{
	"0.0.0.0/8",
	"10.0.0.0/8",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
}

// blockedV6 lists the IPv6 equivalents: loopback, link-local, ULA.
var blockedV6 = []string{
	"::1/128",
	"fe80::/10",
	"fc00::/7",
}

var blockedNets []*net.IPNet

func init() {
	for _, cidr := range append(append([]string{}, blockedV4...), blockedV6...) {
		_, n, err := net.ParseCIDR(cidr)
		if err == nil {
			blockedNets = append(blockedNets, n)
		}
	}
}

// isBlockedIP reports whether ip falls in a private, loopback,
// link-local, or carrier-grade NAT range. IPv4-mapped IPv6 addresses
// are checked as their IPv4 form.
func isBlockedIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	for _, n := range blockedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// hostAllowlist parses the comma-separated allowlist from the
// environment. Entries starting with "*." match any subdomain.
func hostAllowlist(envVar string) []string {
	raw := os.Getenv(envVar)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		p := strings.ToLower(strings.TrimSpace(part))
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// hostAllowed reports whether host matches an allowlist entry. A
// wildcard entry "*.example.com" matches every proper subdomain of
// example.com, never the apex; list the apex as its own entry to
// allow it.
func hostAllowed(host string, allowlist []string) bool {
	h := strings.ToLower(strings.TrimSuffix(host, "."))
	for _, entry := range allowlist {
		if wild, ok := strings.CutPrefix(entry, "*."); ok {
			if strings.HasSuffix(h, "."+wild) {
				return true
			}
			continue
		}
		if h == entry {
			return true
		}
	}
	return false
}

// resolver abstracts DNS lookup so tests can pin answers.
type resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// checkHost resolves host and verifies that no resolved address is in a
// blocked range, unless the hostname itself is allowlisted. Literal IP
// hosts skip DNS. Returns the error code on rejection.
func checkHost(ctx context.Context, res resolver, host string, allowlist []string) (code, reason string) {
	if hostAllowed(host, allowlist) {
		return "", ""
	}

	if ip := net.ParseIP(strings.Trim(host, "[]")); ip != nil {
		if isBlockedIP(ip) {
			return "LAN_HOST_NOT_ALLOWLISTED", "address " + ip.String() + " is in a blocked range"
		}
		return "", ""
	}

	addrs, err := res.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return "DNS_RESOLUTION_FAILED", "cannot resolve host " + host
	}
	for _, a := range addrs {
		if isBlockedIP(a.IP) {
			return "LAN_HOST_NOT_ALLOWLISTED", "host " + host + " resolves to blocked address " + a.IP.String()
		}
	}
	return "", ""
}

package service

import (
	"net/netip"
	"strings"
)

// ipAllowed reports whether clientIP matches one entry of a comma-separated
// allowlist of addresses and CIDR ranges. Entries that do not parse never match.
func ipAllowed(allowlist, clientIP string) bool {
	addr, err := netip.ParseAddr(strings.TrimSpace(clientIP))
	if err != nil {
		return false
	}
	addr = addr.Unmap()

	for _, entry := range strings.Split(allowlist, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err == nil && prefix.Contains(addr) {
				return true
			}
			continue
		}
		allowed, err := netip.ParseAddr(entry)
		if err == nil && allowed.Unmap() == addr {
			return true
		}
	}
	return false
}

// hasAllowlist reports whether an API restricts callers by IP.
func hasAllowlist(allowlist *string) bool {
	return allowlist != nil && strings.TrimSpace(*allowlist) != ""
}

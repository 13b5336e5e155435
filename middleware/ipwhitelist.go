package middleware

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
)

// IPWhitelist returns a middleware that only allows requests from specified
// IPs or CIDR ranges. If the whitelist is empty, all IPs are allowed.
func IPWhitelist(ips []string) gin.HandlerFunc {
	allowed := make(map[string]bool, len(ips))
	var nets []netip.Prefix
	for _, ip := range ips {
		if strings.Contains(ip, "/") {
			if p, err := netip.ParsePrefix(ip); err == nil {
				nets = append(nets, p)
			}
			continue
		}
		allowed[ip] = true
	}
	return func(c *gin.Context) {
		if len(ips) == 0 {
			c.Next()
			return
		}
		if !allowed[c.ClientIP()] && !inPrefixes(nets, c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}

func inPrefixes(nets []netip.Prefix, ip string) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	for _, p := range nets {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

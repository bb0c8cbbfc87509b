package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"finanzas/internal/log"
)

// DefaultTrustedProxies are the networks whose forwarding headers are
// believed when TRUSTED_PROXIES is unset.
var DefaultTrustedProxies = []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}

// Finding names the first rule a request tripped.
type Finding string

const (
	FindingNone         Finding = ""
	FindingPath         Finding = "path_pattern"
	FindingQuery        Finding = "query_pattern"
	FindingUserAgent    Finding = "scanner_user_agent"
	FindingMethod       Finding = "unusual_method"
	FindingLongURL      Finding = "long_url"
	FindingForwardChain Finding = "forward_chain"
	FindingLargeBody    Finding = "large_body"
)

const (
	maxURLLength   = 2048
	maxForwardHops = 5
	// A transaction body is a few short fields.
	maxDeclaredBody = 64 << 10
)

var (
	attackPatterns = []string{
		"../", "..\\", ".env", ".git", ".ssh", "wp-admin", "phpmyadmin",
		".php", "etc/passwd", "cmd.exe", "<script", "javascript:",
		"union select", "eval(",
	}
	scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab"}
	oddMethods    = map[string]bool{"TRACE": true, "TRACK": true, "DEBUG": true, "CONNECT": true}
)

// DetectionMetrics counts what the detector saw.
type DetectionMetrics struct {
	SuspiciousRequests int64
	// InvalidForwarded counts forwarding headers from trusted proxies that
	// did not hold a usable address.
	InvalidForwarded int64
}

// Detector flags requests that look like scanning and resolves the client
// address behind trusted proxies. It only observes; nothing is blocked.
type Detector struct {
	suspicious       atomic.Int64
	invalidForwarded atomic.Int64
	trustedProxies   []*net.IPNet
}

// NewDetector trusts forwarding headers from the given CIDRs. An empty list
// means DefaultTrustedProxies.
func NewDetector(trustedProxies ...string) (*Detector, error) {
	if len(trustedProxies) == 0 {
		trustedProxies = DefaultTrustedProxies
	}
	d := &Detector{}
	for _, cidr := range trustedProxies {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", cidr, err)
		}
		d.trustedProxies = append(d.trustedProxies, network)
	}
	return d, nil
}

// Inspect returns the first rule r trips, or FindingNone.
func (d *Detector) Inspect(r *http.Request) Finding {
	f := inspect(r)
	if f != FindingNone {
		d.suspicious.Add(1)
	}
	return f
}

func inspect(r *http.Request) Finding {
	if oddMethods[r.Method] {
		return FindingMethod
	}
	if len(r.URL.RequestURI()) > maxURLLength {
		return FindingLongURL
	}
	if containsAny(strings.ToLower(r.URL.Path), attackPatterns) {
		return FindingPath
	}
	if containsAny(strings.ToLower(r.URL.RawQuery), attackPatterns) {
		return FindingQuery
	}
	if containsAny(strings.ToLower(r.UserAgent()), scannerAgents) {
		return FindingUserAgent
	}
	if strings.Count(r.Header.Get("X-Forwarded-For"), ",") >= maxForwardHops {
		return FindingForwardChain
	}
	if r.ContentLength > maxDeclaredBody {
		return FindingLargeBody
	}
	return FindingNone
}

func containsAny(s string, patterns []string) bool {
	if s == "" {
		return false
	}
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}

// ExtractClientIP returns the address the rate limiter and logs key on.
// Forwarding headers are read only when the peer is a trusted proxy;
// X-Forwarded-For is walked from the right, skipping trusted hops.
func (d *Detector) ExtractClientIP(r *http.Request) string {
	peer, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		peer = r.RemoteAddr
	}
	peerIP := net.ParseIP(peer)
	if peerIP == nil || !d.trusted(peerIP) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			ip := net.ParseIP(strings.TrimSpace(hops[i]))
			if ip == nil {
				d.invalidForwarded.Add(1)
				break
			}
			if !d.trusted(ip) || i == 0 {
				return ip.String()
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return ip.String()
		}
		d.invalidForwarded.Add(1)
	}
	return peer
}

func (d *Detector) trusted(ip net.IP) bool {
	for _, network := range d.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func (d *Detector) GetMetrics() DetectionMetrics {
	return DetectionMetrics{
		SuspiciousRequests: d.suspicious.Load(),
		InvalidForwarded:   d.invalidForwarded.Load(),
	}
}

// Middleware logs requests that look like scanning. It never blocks them.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f := d.Inspect(r); f != FindingNone {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				"finding", string(f),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldClientIP, d.ExtractClientIP(r),
				log.FieldUserAgent, r.UserAgent())
		}
		next.ServeHTTP(w, r)
	})
}

package session

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ternarybob/cmabridge/internal/common"
	"github.com/ternarybob/cmabridge/internal/models"
)

// ErrSessionMissing means there is no usable authenticated session
var ErrSessionMissing = errors.New("CMA not logged in")

// Target describes the tenant the bridged session talks to
type Target struct {
	TenantHost   string   // e.g. acme.cc.catonetworks.com
	Endpoint     string   // absolute GraphQL URL
	UserAgent    string   // used when the snapshot has none
	ExtraDomains []string // exact cookie domains allowed besides the tenant host and its parent
	Client       *http.Client
}

// TargetFromConfig derives the bridge target from the [cma] section
func TargetFromConfig(cfg *common.Config, client *http.Client) Target {
	return Target{
		TenantHost:   cfg.TenantHost(),
		Endpoint:     cfg.GraphQLEndpoint(),
		UserAgent:    cfg.CMA.UserAgent,
		ExtraDomains: cfg.CMA.CookieDomains,
		Client:       client,
	}
}

// BaseURL is the tenant origin
func (t Target) BaseURL() string {
	return "https://" + t.TenantHost
}

// BridgedSession is an in-memory HTTP client context derived from one snapshot.
// It is never persisted and is rebuilt for every operation.
type BridgedSession struct {
	Endpoint string
	Header   http.Header
	Client   *http.Client
}

// NewRequestHeader returns a copy of the fixed headers for one request
func (b *BridgedSession) NewRequestHeader() http.Header {
	return b.Header.Clone()
}

// BuildHTTPSession derives a bridged session from snapshot.
// It fails with ErrSessionMissing when there is no snapshot or no cookie belongs to the tenant.
func BuildHTTPSession(snapshot *models.SessionSnapshot, target Target) (*BridgedSession, error) {
	if snapshot == nil {
		return nil, ErrSessionMissing
	}

	cookieHeader := CookieHeader(snapshot, target.TenantHost, target.ExtraDomains...)
	if cookieHeader == "" {
		return nil, fmt.Errorf("%w: no cookies for %s in stored session", ErrSessionMissing, target.TenantHost)
	}

	userAgent := snapshot.UserAgent
	if userAgent == "" {
		userAgent = target.UserAgent
	}

	header := http.Header{}
	header.Set("Cookie", cookieHeader)
	header.Set("Origin", target.BaseURL())
	header.Set("Referer", target.BaseURL()+"/")
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")
	if userAgent != "" {
		header.Set("User-Agent", userAgent)
	}

	client := target.Client
	if client == nil {
		client = http.DefaultClient
	}

	return &BridgedSession{
		Endpoint: target.Endpoint,
		Header:   header,
		Client:   client,
	}, nil
}

// CookieHeader builds a Cookie header value from the snapshot cookies that belong to tenantHost.
//
// A cookie is kept when its domain, ignoring a leading dot and case, is exactly the
// tenant host, exactly the tenant host's parent domain, or exactly one of extraDomains.
// Snapshot order is preserved and duplicates are not collapsed.
func CookieHeader(snapshot *models.SessionSnapshot, tenantHost string, extraDomains ...string) string {
	if snapshot == nil {
		return ""
	}

	allowed := allowedDomains(tenantHost, extraDomains)
	if len(allowed) == 0 {
		return ""
	}

	pairs := make([]string, 0, len(snapshot.Cookies))
	for _, c := range snapshot.Cookies {
		if c.Name == "" {
			continue
		}
		if !allowed[normalizeDomain(c.Domain)] {
			continue
		}
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	return strings.Join(pairs, "; ")
}

func allowedDomains(tenantHost string, extra []string) map[string]bool {
	allowed := map[string]bool{}

	host := normalizeDomain(tenantHost)
	if host != "" {
		allowed[host] = true
		if parent := parentDomain(host); parent != "" {
			allowed[parent] = true
		}
	}
	for _, d := range extra {
		if n := normalizeDomain(d); n != "" {
			allowed[n] = true
		}
	}
	return allowed
}

func normalizeDomain(domain string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "."))
}

// parentDomain drops the first label, refusing to return a bare TLD
func parentDomain(host string) string {
	i := strings.IndexByte(host, '.')
	if i < 0 {
		return ""
	}
	parent := host[i+1:]
	if !strings.Contains(parent, ".") {
		return ""
	}
	return parent
}

// Package browser drives the interactive console login and captures the resulting session.
package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/common"
	"github.com/ternarybob/cmabridge/internal/interfaces"
	"github.com/ternarybob/cmabridge/internal/models"
)

var (
	// ErrLoginTimeout means the tenant dashboard was not reached before the login deadline
	ErrLoginTimeout = errors.New("login timed out before reaching the tenant dashboard")
	// ErrLoginAborted means the browser was closed, failed to start or the login was cancelled
	ErrLoginAborted = errors.New("login aborted")
)

// Login form selectors on the common portal and the identity provider
const (
	portalUsernameSelector = `input#username[name="username"]`
	portalNextSelector     = `input.btn-submit[name="submit"][value="Next"]`
	authUsernameSelector   = `input[name="username"]`
	authPasswordSelector   = `input[name="password"]`
	authLoginSelector      = `input.btn-submit[name="submit"][value="Log in"]`
)

// Options configures a login driver
type Options struct {
	LoginURL      string
	Tenant        string
	ConsoleDomain string
	AuthDomain    string
	UserAgent     string
	Headless      bool
	NoSandbox     bool
	SlowMo        time.Duration
	LoginTimeout  time.Duration
	StepTimeout   time.Duration
}

// OptionsFromConfig builds driver options from the [cma] and [browser] sections
func OptionsFromConfig(cfg *common.Config) Options {
	return Options{
		LoginURL:      cfg.CMA.LoginURL,
		Tenant:        strings.ToLower(cfg.CMA.Tenant),
		ConsoleDomain: cfg.CMA.ConsoleDomain,
		AuthDomain:    cfg.CMA.AuthDomain,
		UserAgent:     cfg.CMA.UserAgent,
		Headless:      cfg.Browser.Headless,
		NoSandbox:     cfg.Browser.NoSandbox,
		SlowMo:        time.Duration(cfg.Browser.SlowMo) * time.Millisecond,
		LoginTimeout:  cfg.LoginTimeout(),
		StepTimeout:   cfg.StepTimeout(),
	}
}

// NewDriver returns the driver named by browser.driver
func NewDriver(cfg *common.Config, logger arbor.ILogger) (interfaces.LoginDriver, error) {
	opts := OptionsFromConfig(cfg)
	switch cfg.Browser.Driver {
	case "", "chromedp":
		return NewChromedpDriver(opts, logger), nil
	case "playwright":
		return NewPlaywrightDriver(opts, logger), nil
	default:
		return nil, fmt.Errorf("unknown browser driver %q", cfg.Browser.Driver)
	}
}

// TenantBaseURL is the tenant console origin
func (o Options) TenantBaseURL() string {
	return "https://" + o.Tenant + "." + o.ConsoleDomain
}

// DashboardPattern matches the tenant dashboard URL reached after a successful login
func (o Options) DashboardPattern() *regexp.Regexp {
	return regexp.MustCompile(`^https://` + regexp.QuoteMeta(o.Tenant+"."+o.ConsoleDomain) + `/.*#/account/.*`)
}

// AuthHostPattern matches the identity provider, shared or tenant specific
func (o Options) AuthHostPattern() *regexp.Regexp {
	return regexp.MustCompile(`auth\.` + regexp.QuoteMeta(o.AuthDomain) + `|auth\.` + regexp.QuoteMeta(o.Tenant+"."+o.AuthDomain))
}

// CookieURLs are the origins whose cookies make up the snapshot
func (o Options) CookieURLs() []string {
	return []string{
		o.LoginURL,
		"https://auth." + o.AuthDomain,
		"https://auth." + o.Tenant + "." + o.AuthDomain,
		o.TenantBaseURL(),
	}
}

func (o Options) loginTimeout() time.Duration {
	if o.LoginTimeout <= 0 {
		return 5 * time.Minute
	}
	return o.LoginTimeout
}

func (o Options) stepTimeout() time.Duration {
	if o.StepTimeout <= 0 {
		return 30 * time.Second
	}
	return o.StepTimeout
}

func (o Options) newSnapshot(cookies []models.SnapshotCookie) *models.SessionSnapshot {
	return &models.SessionSnapshot{
		Cookies:    cookies,
		Origin:     o.TenantBaseURL(),
		UserAgent:  o.UserAgent,
		CapturedAt: time.Now().UTC(),
	}
}

// classifyWaitError maps a failed dashboard wait to the driver error taxonomy.
// parent is the caller's context, login the context bounded by the login deadline.
func classifyWaitError(parent, login context.Context, err error) error {
	switch {
	case parent.Err() != nil:
		return fmt.Errorf("%w: %v", ErrLoginAborted, parent.Err())
	case errors.Is(login.Err(), context.DeadlineExceeded):
		return ErrLoginTimeout
	default:
		return fmt.Errorf("%w: %v", ErrLoginAborted, err)
	}
}

func timeUntil(deadline time.Time) time.Duration {
	d := time.Until(deadline)
	if d < 0 {
		return 0
	}
	return d
}

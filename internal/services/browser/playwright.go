package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/models"
)

// PlaywrightDriver logs in with a Playwright-managed Chromium
type PlaywrightDriver struct {
	opts   Options
	logger arbor.ILogger

	installOnce sync.Once
	installErr  error
}

// NewPlaywrightDriver creates a playwright login driver.
// The driver and browser binaries are installed on first use.
func NewPlaywrightDriver(opts Options, logger arbor.ILogger) *PlaywrightDriver {
	return &PlaywrightDriver{opts: opts, logger: logger}
}

func (d *PlaywrightDriver) Name() string {
	return "playwright"
}

func (d *PlaywrightDriver) runOptions() *playwright.RunOptions {
	return &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}
}

// Login opens a Chromium window, fills the login forms and waits for the tenant dashboard
func (d *PlaywrightDriver) Login(ctx context.Context, email, password string) (*models.SessionSnapshot, error) {
	d.installOnce.Do(func() {
		d.installErr = playwright.Install(d.runOptions())
	})
	if d.installErr != nil {
		return nil, fmt.Errorf("%w: failed to install playwright: %v", ErrLoginAborted, d.installErr)
	}

	pw, err := playwright.Run(d.runOptions())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to start playwright: %v", ErrLoginAborted, err)
	}
	defer pw.Stop()

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless:        playwright.Bool(d.opts.Headless),
		SlowMo:          playwright.Float(float64(d.opts.SlowMo.Milliseconds())),
		ChromiumSandbox: playwright.Bool(!d.opts.NoSandbox),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to launch browser: %v", ErrLoginAborted, err)
	}
	defer browser.Close()

	browserContext, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(d.opts.UserAgent),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create browser context: %v", ErrLoginAborted, err)
	}

	page, err := browserContext.NewPage()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open page: %v", ErrLoginAborted, err)
	}

	loginCtx, loginCancel := context.WithTimeout(ctx, d.opts.loginTimeout())
	defer loginCancel()

	// Playwright calls block without a context; closing the browser unblocks them
	stop := context.AfterFunc(ctx, func() {
		browser.Close()
	})
	defer stop()

	stepTimeout := float64(d.opts.stepTimeout().Milliseconds())

	d.logger.Info().
		Str("driver", d.Name()).
		Str("url", d.opts.LoginURL).
		Bool("headless", d.opts.Headless).
		Msg("Opening login portal")

	if _, err := page.Goto(d.opts.LoginURL); err != nil {
		return nil, classifyWaitError(ctx, loginCtx, fmt.Errorf("failed to open login portal: %w", err))
	}

	// Step 1: common portal asks for the address first
	if err := d.portalStep(page, email, stepTimeout); err != nil {
		if !errors.Is(err, playwright.ErrTimeout) {
			return nil, classifyWaitError(ctx, loginCtx, err)
		}
		d.logger.Info().Msg("Portal email form not found - skipping step (session may already be signed in)")
	}

	// Step 2: identity provider form, absent with SSO
	if err := d.credentialStep(page, email, password, stepTimeout); err != nil {
		if !errors.Is(err, playwright.ErrTimeout) {
			return nil, classifyWaitError(ctx, loginCtx, err)
		}
		d.logger.Info().Msg("Credential form not found - skipping step (SSO may be active)")
	} else {
		d.logger.Info().Msg("Credentials submitted - complete any CAPTCHA or MFA prompt in the browser window")
	}

	// Step 3: wait for the operator to land on the tenant dashboard
	remaining := d.opts.loginTimeout()
	if deadline, ok := loginCtx.Deadline(); ok {
		remaining = timeUntil(deadline)
	}
	d.logger.Info().Dur("timeout", remaining).Msg("Waiting for tenant dashboard")

	if err := page.WaitForURL(d.opts.DashboardPattern(), playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(float64(remaining.Milliseconds())),
	}); err != nil {
		if errors.Is(err, playwright.ErrTimeout) && ctx.Err() == nil {
			return nil, ErrLoginTimeout
		}
		return nil, classifyWaitError(ctx, loginCtx, err)
	}

	cookies, err := browserContext.Cookies(d.opts.CookieURLs()...)
	if err != nil {
		return nil, classifyWaitError(ctx, loginCtx, fmt.Errorf("failed to read cookies: %w", err))
	}

	snapshotCookies := make([]models.SnapshotCookie, 0, len(cookies))
	for _, c := range cookies {
		sc := models.SnapshotCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		if c.SameSite != nil {
			sc.SameSite = string(*c.SameSite)
		}
		snapshotCookies = append(snapshotCookies, sc)
	}

	d.logger.Info().Int("cookies", len(snapshotCookies)).Msg("Tenant dashboard reached - session captured")
	return d.opts.newSnapshot(snapshotCookies), nil
}

func (d *PlaywrightDriver) portalStep(page playwright.Page, email string, timeout float64) error {
	if _, err := page.WaitForSelector(portalUsernameSelector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(timeout),
	}); err != nil {
		return err
	}
	if err := page.Fill("#username", email); err != nil {
		return err
	}
	return page.Click(portalNextSelector, playwright.PageClickOptions{Timeout: playwright.Float(timeout)})
}

func (d *PlaywrightDriver) credentialStep(page playwright.Page, email, password string, timeout float64) error {
	if err := page.WaitForURL(d.opts.AuthHostPattern(), playwright.PageWaitForURLOptions{
		Timeout: playwright.Float(timeout),
	}); err != nil {
		return err
	}

	for _, selector := range []string{authUsernameSelector, authPasswordSelector} {
		if _, err := page.WaitForSelector(selector, playwright.PageWaitForSelectorOptions{
			Timeout: playwright.Float(timeout),
		}); err != nil {
			return err
		}
	}

	if err := page.Fill(authUsernameSelector, email); err != nil {
		return err
	}
	if err := page.Fill(authPasswordSelector, password); err != nil {
		return err
	}
	return page.Click(authLoginSelector, playwright.PageClickOptions{Timeout: playwright.Float(timeout)})
}

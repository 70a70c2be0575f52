package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/models"
)

// urlPollInterval is how often the current location is checked while waiting for a redirect
const urlPollInterval = 500 * time.Millisecond

// ChromedpDriver logs in with a local Chrome driven over the DevTools protocol
type ChromedpDriver struct {
	opts   Options
	logger arbor.ILogger
}

// NewChromedpDriver creates a chromedp login driver
func NewChromedpDriver(opts Options, logger arbor.ILogger) *ChromedpDriver {
	return &ChromedpDriver{opts: opts, logger: logger}
}

func (d *ChromedpDriver) Name() string {
	return "chromedp"
}

// Login opens a browser window, fills the login forms and waits for the operator
// to reach the tenant dashboard (solving CAPTCHA or MFA by hand when required)
func (d *ChromedpDriver) Login(ctx context.Context, email, password string) (*models.SessionSnapshot, error) {
	allocatorOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", d.opts.Headless),
		chromedp.Flag("no-sandbox", d.opts.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(d.opts.UserAgent),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(ctx, allocatorOpts...)
	defer allocatorCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)
	defer browserCancel()

	// The first Run allocates the browser and must not carry a timeout
	if err := chromedp.Run(browserCtx); err != nil {
		return nil, fmt.Errorf("%w: failed to start browser: %v", ErrLoginAborted, err)
	}

	loginCtx, loginCancel := context.WithTimeout(browserCtx, d.opts.loginTimeout())
	defer loginCancel()

	d.logger.Info().
		Str("driver", d.Name()).
		Str("url", d.opts.LoginURL).
		Bool("headless", d.opts.Headless).
		Msg("Opening login portal")

	if err := chromedp.Run(loginCtx, chromedp.Navigate(d.opts.LoginURL)); err != nil {
		return nil, classifyWaitError(ctx, loginCtx, fmt.Errorf("failed to open login portal: %w", err))
	}

	// Step 1: common portal asks for the address first
	if err := d.step(loginCtx, "portal email",
		chromedp.WaitVisible(portalUsernameSelector, chromedp.ByQuery),
		chromedp.SendKeys(portalUsernameSelector, email, chromedp.ByQuery),
		d.pause(),
		chromedp.Click(portalNextSelector, chromedp.ByQuery),
	); err != nil {
		d.logger.Info().Err(err).Msg("Portal email form not found - skipping step (session may already be signed in)")
	}

	// Step 2: identity provider form, absent with SSO
	authCtx, authCancel := context.WithTimeout(loginCtx, d.opts.stepTimeout())
	err := d.waitForURL(authCtx, d.opts.AuthHostPattern().MatchString)
	authCancel()
	if err == nil {
		err = d.step(loginCtx, "credentials",
			chromedp.WaitVisible(authUsernameSelector, chromedp.ByQuery),
			chromedp.WaitVisible(authPasswordSelector, chromedp.ByQuery),
			chromedp.SetValue(authUsernameSelector, "", chromedp.ByQuery),
			chromedp.SendKeys(authUsernameSelector, email, chromedp.ByQuery),
			chromedp.SendKeys(authPasswordSelector, password, chromedp.ByQuery),
			d.pause(),
			chromedp.Click(authLoginSelector, chromedp.ByQuery),
		)
		if err != nil {
			d.logger.Info().Err(err).Msg("Credential form not found - skipping step")
		} else {
			d.logger.Info().Msg("Credentials submitted - complete any CAPTCHA or MFA prompt in the browser window")
		}
	} else {
		d.logger.Info().Msg("Identity provider page not reached - skipping credential step (SSO may be active)")
	}

	if ctx.Err() != nil || browserCtx.Err() != nil {
		return nil, classifyWaitError(ctx, loginCtx, browserCtx.Err())
	}

	// Step 3: wait for the operator to land on the tenant dashboard
	d.logger.Info().Dur("timeout", d.opts.loginTimeout()).Msg("Waiting for tenant dashboard")
	if err := d.waitForURL(loginCtx, d.opts.DashboardPattern().MatchString); err != nil {
		return nil, classifyWaitError(ctx, loginCtx, err)
	}

	cookies, err := d.collectCookies(loginCtx)
	if err != nil {
		return nil, classifyWaitError(ctx, loginCtx, fmt.Errorf("failed to read cookies: %w", err))
	}

	d.logger.Info().Int("cookies", len(cookies)).Msg("Tenant dashboard reached - session captured")
	return d.opts.newSnapshot(cookies), nil
}

// step runs actions under the per-step timeout
func (d *ChromedpDriver) step(ctx context.Context, name string, actions ...chromedp.Action) error {
	stepCtx, cancel := context.WithTimeout(ctx, d.opts.stepTimeout())
	defer cancel()

	if err := chromedp.Run(stepCtx, actions...); err != nil {
		return fmt.Errorf("%s step: %w", name, err)
	}
	return nil
}

func (d *ChromedpDriver) pause() chromedp.Action {
	return chromedp.Sleep(d.opts.SlowMo)
}

// waitForURL polls the page location until match reports true or ctx ends
func (d *ChromedpDriver) waitForURL(ctx context.Context, match func(string) bool) error {
	ticker := time.NewTicker(urlPollInterval)
	defer ticker.Stop()

	for {
		var location string
		if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
			return err
		}
		if match(location) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *ChromedpDriver) collectCookies(ctx context.Context) ([]models.SnapshotCookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithURLs(d.opts.CookieURLs()).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	result := make([]models.SnapshotCookie, 0, len(cookies))
	for _, c := range cookies {
		result = append(result, models.SnapshotCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: string(c.SameSite),
		})
	}

	d.logger.Debug().Int("count", len(result)).Msg("Collected browser cookies")
	return result, nil
}

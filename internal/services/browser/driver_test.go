package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/cmabridge/internal/common"
)

func testOptions() Options {
	cfg := common.NewDefaultConfig()
	cfg.CMA.Tenant = "Acme"
	return OptionsFromConfig(cfg)
}

func TestOptionsFromConfig(t *testing.T) {
	opts := testOptions()

	assert.Equal(t, "acme", opts.Tenant)
	assert.Equal(t, "https://acme.cc.catonetworks.com", opts.TenantBaseURL())
	assert.Equal(t, 150*time.Millisecond, opts.SlowMo)
	assert.Equal(t, 5*time.Minute, opts.LoginTimeout)
	assert.False(t, opts.Headless)
}

func TestDashboardPattern(t *testing.T) {
	pattern := testOptions().DashboardPattern()

	tests := []struct {
		url   string
		match bool
	}{
		{"https://acme.cc.catonetworks.com/#/account/12345/dashboard", true},
		{"https://acme.cc.catonetworks.com/index.html#/account/1", true},
		{"https://acme.cc.catonetworks.com/#/login", false},
		{"https://other.cc.catonetworks.com/#/account/1", false},
		{"https://acmeXcc.catonetworks.com/#/account/1", false},
		{"https://evil.io/?next=https://acme.cc.catonetworks.com/#/account/1", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.match, pattern.MatchString(tt.url))
		})
	}
}

func TestAuthHostPattern(t *testing.T) {
	pattern := testOptions().AuthHostPattern()

	assert.True(t, pattern.MatchString("https://auth.catonetworks.com/login"))
	assert.True(t, pattern.MatchString("https://auth.acme.catonetworks.com/u/login"))
	assert.False(t, pattern.MatchString("https://cc.catonetworks.com/"))
}

func TestCookieURLs(t *testing.T) {
	assert.Equal(t, []string{
		"https://cc.catonetworks.com",
		"https://auth.catonetworks.com",
		"https://auth.acme.catonetworks.com",
		"https://acme.cc.catonetworks.com",
	}, testOptions().CookieURLs())
}

func TestNewDriver(t *testing.T) {
	logger := arbor.NewLogger()
	cfg := common.NewDefaultConfig()
	cfg.CMA.Tenant = "acme"

	driver, err := NewDriver(cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, "chromedp", driver.Name())

	cfg.Browser.Driver = "playwright"
	driver, err = NewDriver(cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, "playwright", driver.Name())

	cfg.Browser.Driver = "selenium"
	_, err = NewDriver(cfg, logger)
	assert.Error(t, err)
}

func TestClassifyWaitError(t *testing.T) {
	cause := errors.New("target closed")

	t.Run("deadline is a timeout", func(t *testing.T) {
		login, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
		defer cancel()
		<-login.Done()

		assert.ErrorIs(t, classifyWaitError(context.Background(), login, cause), ErrLoginTimeout)
	})

	t.Run("caller cancellation is an abort", func(t *testing.T) {
		parent, cancel := context.WithCancel(context.Background())
		cancel()

		err := classifyWaitError(parent, parent, cause)
		assert.ErrorIs(t, err, ErrLoginAborted)
		assert.NotErrorIs(t, err, ErrLoginTimeout)
	})

	t.Run("closed browser is an abort", func(t *testing.T) {
		err := classifyWaitError(context.Background(), context.Background(), cause)
		assert.ErrorIs(t, err, ErrLoginAborted)
		assert.Contains(t, err.Error(), "target closed")
	})
}

// Package browser provides shared test utilities for Playwright browser tests.
// All browser test files use BrowserTestEnv via SetupBrowserTestEnv(t).
package browser

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kuitang/loginform/internal/identity"
	"github.com/kuitang/loginform/internal/loginform"
	"github.com/kuitang/loginform/internal/ratelimit"
	"github.com/kuitang/loginform/internal/web"
)

const (
	// Never introduce a larger timeout value anywhere in tests/browser.
	browserMaxTimeoutMS = 5000
	browserMaxTimeout   = 5 * time.Second
)

var browserFixtureMu sync.Mutex
var browserSharedFixture *BrowserTestEnv

// BrowserTestEnv is the unified test environment for all browser tests.
// Every test gets the full mux: the login form pages plus a controllable
// fake identity fetcher.
type BrowserTestEnv struct {
	Server  *httptest.Server
	BaseURL string
	Fetcher *identity.FakeFetcher
	Forms   *loginform.Registry
	Limiter *ratelimit.AttemptLimiter

	pw        *playwright.Playwright
	browser   playwright.Browser
	browserMu sync.Mutex
}

// SetupBrowserTestEnv returns the shared wired test server, with the fake
// fetcher reset to its default scripted outcome.
func SetupBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if browserSharedFixture == nil {
		browserSharedFixture = createBrowserTestEnv(t)
	}

	env := browserSharedFixture
	env.Fetcher.Release()
	env.Fetcher.SetResult(identity.Identity{ID: 1, Name: "John"})
	return env
}

func createBrowserTestEnv(t *testing.T) *BrowserTestEnv {
	t.Helper()

	renderer, err := web.NewRenderer(findTemplatesDir())
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}

	fetcher := identity.NewFakeFetcher()
	forms := loginform.NewRegistry(func() *loginform.Controller {
		return loginform.NewController(fetcher)
	}, time.Hour)

	// High limits so throttling never interferes with UI tests.
	limiter := ratelimit.NewAttemptLimiter(ratelimit.Config{
		AttemptsPerSecond: 10000,
		Burst:             100000,
		CleanupInterval:   time.Hour,
	})

	mux := http.NewServeMux()
	web.NewFormHandler(renderer, forms, limiter, false).RegisterRoutes(mux)
	server := httptest.NewServer(mux)

	return &BrowserTestEnv{
		Server:  server,
		BaseURL: server.URL,
		Fetcher: fetcher,
		Forms:   forms,
		Limiter: limiter,
	}
}

func cleanupSharedBrowserTestEnv() {
	browserFixtureMu.Lock()
	defer browserFixtureMu.Unlock()

	if browserSharedFixture == nil {
		return
	}
	if browserSharedFixture.browser != nil {
		_ = browserSharedFixture.browser.Close()
	}
	if browserSharedFixture.pw != nil {
		_ = browserSharedFixture.pw.Stop()
	}
	if browserSharedFixture.Server != nil {
		browserSharedFixture.Server.Close()
	}
	if browserSharedFixture.Limiter != nil {
		browserSharedFixture.Limiter.Stop()
	}
	if browserSharedFixture.Forms != nil {
		browserSharedFixture.Forms.Stop()
	}
	browserSharedFixture = nil
}

func findTemplatesDir() string {
	dir := filepath.Join(repositoryRoot(), "web", "templates")
	if _, err := os.Stat(dir); err != nil {
		panic("Cannot find templates directory")
	}
	return dir
}

func repositoryRoot() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		panic("Failed to resolve repository root for test utilities")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}

// =============================================================================
// Browser lifecycle helpers
// =============================================================================

// InitBrowser initializes Playwright and launches Chromium. Skips the test if not available.
func (env *BrowserTestEnv) InitBrowser(t *testing.T) {
	t.Helper()

	env.browserMu.Lock()
	defer env.browserMu.Unlock()

	if env.browser != nil {
		return
	}

	pw, err := playwright.Run()
	if err != nil {
		t.Skip("Playwright not available:", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		_ = pw.Stop()
		t.Skip("Could not launch browser:", err)
	}
	env.pw = pw
	env.browser = browser
}

// NewPage creates a new browser page with default 5s timeout. Each page gets
// a fresh browser context, so each test sees a fresh form.
func (env *BrowserTestEnv) NewPage(t *testing.T) playwright.Page {
	t.Helper()

	ctx, err := env.browser.NewContext()
	if err != nil {
		t.Fatalf("could not create browser context: %v", err)
	}
	t.Cleanup(func() { _ = ctx.Close() })

	page, err := ctx.NewPage()
	if err != nil {
		t.Fatalf("could not create page: %v", err)
	}
	page.SetDefaultTimeout(browserMaxTimeoutMS)
	page.SetDefaultNavigationTimeout(browserMaxTimeoutMS)
	return page
}

// =============================================================================
// Navigation and wait helpers
// =============================================================================

// Navigate navigates to a path on the test server and waits for DOMContentLoaded.
func Navigate(t *testing.T, page playwright.Page, baseURL, path string) {
	t.Helper()

	_, err := page.Goto(baseURL+path, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(browserMaxTimeoutMS),
	})
	if err != nil {
		t.Fatalf("Failed to navigate to %s: %v", path, err)
	}
}

// WaitForSelector waits for an element to be visible and returns its locator.
func WaitForSelector(t *testing.T, page playwright.Page, selector string) playwright.Locator {
	t.Helper()

	locator := page.Locator(selector).First()
	err := locator.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(browserMaxTimeoutMS),
	})
	if err != nil {
		content, _ := page.Content()
		if len(content) > 500 {
			content = content[:500] + "..."
		}
		t.Logf("Current URL: %s", page.URL())
		t.Logf("Content preview: %s", content)
		t.Fatalf("Failed to wait for selector %s: %v", selector, err)
	}
	return locator
}

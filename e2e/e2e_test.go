// Package e2e drives a running SupportWatch deployment through a headless
// browser. Tests are skipped unless E2E_BASE_URL is set.
package e2e

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

// baseURL returns E2E_BASE_URL or skips the test
func baseURL(t *testing.T) string {
	t.Helper()
	url := strings.TrimRight(os.Getenv("E2E_BASE_URL"), "/")
	if url == "" {
		t.Skip("E2E_BASE_URL not set")
	}
	return url
}

// setupBrowser creates a chromedp browser context with a session timeout
func setupBrowser(t *testing.T) (context.Context, context.CancelFunc) {
	t.Helper()
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", os.Getenv("E2E_HEADLESS") != "false"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1280, 900),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	ctx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...interface{}) {
			if strings.Contains(strings.ToLower(format), "error") {
				t.Logf("[chromedp] "+format, args...)
			}
		}),
	)
	ctx, timeoutCancel := context.WithTimeout(ctx, 2*time.Minute)

	return ctx, func() {
		timeoutCancel()
		cancel()
		allocCancel()
	}
}

func TestHealthEndpoints(t *testing.T) {
	url := baseURL(t)
	ctx, cancel := setupBrowser(t)
	defer cancel()

	for _, path := range []string{"/healthz", "/healthz/db"} {
		var body string
		err := chromedp.Run(ctx,
			chromedp.Navigate(url+path),
			chromedp.WaitReady("body"),
			chromedp.Text("body", &body),
		)
		if err != nil {
			t.Fatalf("Failed to load %s: %v", path, err)
		}
		if !strings.Contains(body, `"healthy"`) {
			t.Errorf("%s: expected healthy status, got: %s", path, body)
		}
	}
}

func TestSwaggerListsRoutes(t *testing.T) {
	url := baseURL(t)
	ctx, cancel := setupBrowser(t)
	defer cancel()

	var operations []*cdp.Node
	err := chromedp.Run(ctx,
		chromedp.Navigate(url+"/swagger/index.html"),
		chromedp.WaitVisible(".opblock", chromedp.ByQuery),
		chromedp.Nodes(".opblock", &operations, chromedp.ByQueryAll),
	)
	if err != nil {
		t.Fatalf("Failed to load swagger UI: %v", err)
	}

	// one block per documented operation
	if len(operations) < 8 {
		t.Errorf("Expected at least 8 documented operations, got %d", len(operations))
	}

	var summaries string
	if err := chromedp.Run(ctx, chromedp.Text(".swagger-ui", &summaries, chromedp.ByQuery)); err != nil {
		t.Fatalf("Failed to read swagger UI: %v", err)
	}
	for _, route := range []string{"/api/webhooks/messages", "/api/knowledge/search", "/api/issues/{id}"} {
		if !strings.Contains(summaries, route) {
			t.Errorf("Swagger UI does not list %s", route)
		}
	}
}

func TestAnalyticsEndpoint(t *testing.T) {
	url := baseURL(t)
	ctx, cancel := setupBrowser(t)
	defer cancel()

	var body string
	err := chromedp.Run(ctx,
		chromedp.Navigate(fmt.Sprintf("%s/api/analytics?period=%s", url, "today")),
		chromedp.WaitReady("body"),
		chromedp.Text("body", &body),
	)
	if err != nil {
		t.Fatalf("Failed to load analytics: %v", err)
	}
	if !strings.Contains(body, `"period":"today"`) {
		t.Errorf("Expected a today summary, got: %s", body)
	}
}

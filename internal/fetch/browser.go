// Package fetch - browser.go provides headless browser rendering for pages
// that only produce content after JavaScript runs.
package fetch

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// MinContentLength is the minimum extracted text length to consider a plain
// HTTP fetch successful. Shorter content suggests a JavaScript-rendered
// page that needs the browser.
const MinContentLength = 500

// ShouldUseBrowser returns true if the extracted text is too short,
// indicating the page is likely a JavaScript-rendered SPA.
func ShouldUseBrowser(extractedText string) bool {
	return len(strings.TrimSpace(extractedText)) < MinContentLength
}

// RenderResult carries the outcome of a browser render back over a channel.
type RenderResult struct {
	HTML string
	Err  error
}

// RenderAsync renders a page on a dedicated goroutine and delivers the
// result over the returned channel. The chromedp driver blocks for the
// whole render, so it must never run inline on a loop that also does
// admission control.
func RenderAsync(ctx context.Context, url string, timeout time.Duration, verbose bool) <-chan RenderResult {
	ch := make(chan RenderResult, 1)
	go func() {
		html, err := render(ctx, url, timeout, verbose)
		ch <- RenderResult{HTML: html, Err: err}
	}()
	return ch
}

// Render renders a page and waits for the result, honoring ctx cancellation.
func Render(ctx context.Context, url string, timeout time.Duration, verbose bool) (string, error) {
	select {
	case res := <-RenderAsync(ctx, url, timeout, verbose):
		return res.HTML, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// render drives a headless browser through navigation and HTML capture.
// Requires Chrome/Chromium to be installed on the system.
func render(ctx context.Context, url string, timeout time.Duration, verbose bool) (string, error) {
	if verbose {
		log.Printf("[BROWSER] Starting headless browser for: %s", url)
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html string

	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		// Additional wait for JavaScript to render content
		chromedp.Sleep(3*time.Second),
		// Try to dismiss common cookie banners
		chromedp.ActionFunc(func(ctx context.Context) error {
			_ = chromedp.Click(`button[id*="accept"], button[class*="accept"]`, chromedp.NodeVisible).Do(ctx)
			return nil
		}),
		chromedp.Sleep(1*time.Second),
		chromedp.OuterHTML("html", &html),
	)

	if err != nil {
		return "", fmt.Errorf("browser rendering failed: %w", err)
	}

	if verbose {
		log.Printf("[BROWSER] Rendered HTML: %d bytes", len(html))
	}

	return html, nil
}

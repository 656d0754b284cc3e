package web

import (
	"context"
	"fmt"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/chromedp/chromedp"
)

// headlessFetcher renders a page in a headless Chrome instance before
// converting it to markdown. Used as a fallback for pages FetchMarkdown's
// plain GET can't read: JS-rendered SPAs or endpoints that refuse to answer
// without executing client-side script.
type headlessFetcher struct {
	timeout time.Duration
}

func newHeadlessFetcher(timeout time.Duration) *headlessFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &headlessFetcher{timeout: timeout}
}

// fetchRendered navigates to rawURL, waits for the DOM to settle, and
// returns the rendered document converted to markdown.
func (h *headlessFetcher) fetchRendered(ctx context.Context, rawURL string) (*Result, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	timeoutCtx, cancelTimeout := context.WithTimeout(browserCtx, h.timeout)
	defer cancelTimeout()

	var title, renderedHTML, finalURL string
	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(rawURL),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Title(&title),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &renderedHTML, chromedp.ByQuery),
	)
	if err != nil {
		return nil, fmt.Errorf("headless render: %w", err)
	}

	base := baseOrigin(finalURL)
	md, err := htmltomarkdown.ConvertString(renderedHTML, converter.WithDomain(base))
	if err != nil {
		return nil, fmt.Errorf("html→markdown: %w", err)
	}

	md = strings.TrimSpace(md)
	if title != "" && !hasLeadingH1(md) {
		md = "# " + title + "\n\n" + md
	}

	return &Result{
		InputURL:    rawURL,
		FinalURL:    finalURL,
		Status:      200,
		ContentType: "text/html",
		Title:       title,
		Markdown:    md,
		FetchedAt:   time.Now(),
	}, nil
}

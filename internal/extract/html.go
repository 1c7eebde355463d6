package extract

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"context"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// maxHTMLResponseSize bounds the body read to keep one oversized page from
// exhausting memory during a crawl.
const maxHTMLResponseSize = 10 << 20 // 10MB

// extractWeb fetches a support page and extracts its readable main content.
// Readability handles article-style pages; pages it cannot parse fall back
// to a raw goquery text walk over the body.
func (e *Extractor) extractWeb(ctx context.Context, rawURL string) (Result, error) {
	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return Result{}, fmt.Errorf("%w: invalid URL %q: %v", ErrExtraction, rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: building request for %s: %v", ErrExtraction, rawURL, err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: fetching %s: %v", ErrExtraction, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("%w: fetching %s: status %d", ErrExtraction, rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTMLResponseSize))
	if err != nil {
		return Result{}, fmt.Errorf("%w: reading %s: %v", ErrExtraction, rawURL, err)
	}

	return e.extractHTML(body, pageURL)
}

// extractHTML extracts readable text from raw HTML. Split out from the
// fetch so tests can exercise it without a server.
func (e *Extractor) extractHTML(body []byte, pageURL *url.URL) (Result, error) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	title := article.Title
	text := strings.TrimSpace(article.TextContent)

	if err != nil || text == "" {
		// Not article-shaped; take the body text wholesale.
		e.logger.Debug("readability found no article, using body text", "url", pageURL.String())
		doc, qerr := goquery.NewDocumentFromReader(bytes.NewReader(body))
		if qerr != nil {
			return Result{}, fmt.Errorf("%w: parsing HTML from %s: %v", ErrExtraction, pageURL, qerr)
		}
		doc.Find("script, style, nav, footer, header").Remove()
		text = doc.Find("body").Text()
		if title == "" {
			title = strings.TrimSpace(doc.Find("title").First().Text())
		}
	}

	cleaned := cleanText(text)
	if cleaned == "" {
		return Result{}, fmt.Errorf("%w: no extractable text at %s", ErrExtraction, pageURL)
	}

	meta := map[string]string{}
	if title != "" {
		meta["title"] = title
	}

	return Result{Text: cleaned, Title: title, Metadata: meta}, nil
}

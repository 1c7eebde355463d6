// Package crawler discovers support pages under a seed URL. It only
// collects page URLs; content extraction happens during ingestion so
// crawling and ingesting share one extraction path.
package crawler

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/askcorpus/askcorpus/internal/log"
)

const userAgent = "askcorpus/1.0 (support corpus indexer)"

// Crawler walks a site breadth-first from a seed, staying on the seed's
// host and path prefix.
type Crawler struct {
	maxPages    int
	parallelism int
	delay       time.Duration
	timeout     time.Duration
	logger      log.Logger
}

// Options configure a Crawler. Zero values select conservative defaults.
type Options struct {
	MaxPages    int           // page budget, default 1000
	Parallelism int           // concurrent fetches, default 2
	Delay       time.Duration // politeness delay per request, default 1s
	Timeout     time.Duration // per-request timeout, default 15s
}

// New creates a Crawler.
func New(opts Options, logger log.Logger) *Crawler {
	if opts.MaxPages <= 0 {
		opts.MaxPages = 1000
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 2
	}
	if opts.Delay < 0 {
		opts.Delay = time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Crawler{
		maxPages:    opts.MaxPages,
		parallelism: opts.Parallelism,
		delay:       opts.Delay,
		timeout:     opts.Timeout,
		logger:      logger,
	}
}

// Discover crawls from seed and returns the normalized URLs of every
// reachable page under the seed's host and path prefix, up to the page
// budget, sorted for determinism.
func (c *Crawler) Discover(ctx context.Context, seed string) ([]string, error) {
	seedNorm, ok := Normalize(seed)
	if !ok {
		return nil, fmt.Errorf("invalid seed URL %q", seed)
	}
	seedURL, err := url.Parse(seedNorm)
	if err != nil {
		return nil, fmt.Errorf("parse seed URL: %w", err)
	}
	prefix := seedURL.Path

	collector := colly.NewCollector(
		colly.AllowedDomains(seedURL.Hostname()),
		colly.UserAgent(userAgent),
		colly.Async(true),
	)
	collector.SetRequestTimeout(c.timeout)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.parallelism,
		Delay:       c.delay,
	}); err != nil {
		return nil, fmt.Errorf("configure crawl limits: %w", err)
	}

	var mu sync.Mutex
	queued := map[string]bool{seedNorm: true}
	var pages []string

	inScope := func(raw string) (string, bool) {
		norm, ok := Normalize(raw)
		if !ok {
			return "", false
		}
		u, err := url.Parse(norm)
		if err != nil || u.Hostname() != seedURL.Hostname() {
			return "", false
		}
		if !strings.HasPrefix(u.Path, prefix) {
			return "", false
		}
		return norm, true
	}

	collector.OnRequest(func(r *colly.Request) {
		select {
		case <-ctx.Done():
			r.Abort()
			return
		default:
		}
		mu.Lock()
		full := len(pages) >= c.maxPages
		mu.Unlock()
		if full {
			r.Abort()
		}
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		norm, ok := inScope(e.Request.AbsoluteURL(e.Attr("href")))
		if !ok {
			return
		}
		mu.Lock()
		if queued[norm] || len(queued) >= c.maxPages*4 {
			mu.Unlock()
			return
		}
		queued[norm] = true
		mu.Unlock()
		_ = e.Request.Visit(norm)
	})

	collector.OnScraped(func(r *colly.Response) {
		norm, ok := inScope(r.Request.URL.String())
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if len(pages) < c.maxPages {
			pages = append(pages, norm)
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		c.logger.Warn("page fetch failed", "url", r.Request.URL.String(), "error", err)
	})

	if err := collector.Visit(seedNorm); err != nil {
		return nil, fmt.Errorf("visit seed %s: %w", seedNorm, err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.Strings(pages)
	c.logger.Info("crawl finished", "seed", seedNorm, "pages", len(pages))
	return pages, nil
}

// Normalize strips the fragment, query, and any trailing slash so the same
// page never enters the corpus twice under different spellings.
func Normalize(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	u.RawQuery = ""
	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String(), true
}

// Package enrichment recovers vendor contact details from their website.
package enrichment

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/unclebandit/vendor-outreach/internal/service"
)

const maxPageBytes = 2 << 20

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?\(?\d[\d\s().\-]{7,}\d`)
)

// Scraper fetches the home page and, when it has no email, the /contact page.
type Scraper struct {
	Client    *http.Client
	UserAgent string
}

func NewScraper() *Scraper {
	return &Scraper{
		Client:    &http.Client{Timeout: 10 * time.Second},
		UserAgent: "vendor-outreach/1.0 (+contact enrichment)",
	}
}

func (s *Scraper) Scrape(ctx context.Context, site string) (service.EnrichmentResult, error) {
	base, err := normalize(site)
	if err != nil {
		return service.EnrichmentResult{}, err
	}

	var result service.EnrichmentResult
	var lastErr error
	for _, page := range []string{base.String(), base.ResolveReference(&url.URL{Path: "/contact"}).String()} {
		c, err := s.fetch(ctx, page)
		if err != nil {
			lastErr = err
			continue
		}
		if result.Phone == "" {
			result.Phone = c.Phone
		}
		if c.Email != "" {
			result.Email = c.Email
			result.Source = page
			return result, nil
		}
	}
	if result.Email == "" && result.Phone == "" && lastErr != nil {
		return result, lastErr
	}
	return result, nil
}

func normalize(site string) (*url.URL, error) {
	site = strings.TrimSpace(site)
	if !strings.Contains(site, "://") {
		site = "https://" + site
	}
	u, err := url.Parse(site)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("invalid website %q", site)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u, nil
}

func (s *Scraper) fetch(ctx context.Context, page string) (service.EnrichmentResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, page, nil)
	if err != nil {
		return service.EnrichmentResult{}, err
	}
	if s.UserAgent != "" {
		req.Header.Set("User-Agent", s.UserAgent)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return service.EnrichmentResult{}, fmt.Errorf("fetch %s: %w", page, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return service.EnrichmentResult{}, fmt.Errorf("fetch %s: status %d", page, resp.StatusCode)
	}
	return ExtractContact(io.LimitReader(resp.Body, maxPageBytes))
}

// ExtractContact prefers mailto:/tel: links and falls back to the visible text.
func ExtractContact(r io.Reader) (service.EnrichmentResult, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return service.EnrichmentResult{}, fmt.Errorf("parse html: %w", err)
	}

	var (
		res  service.EnrichmentResult
		text strings.Builder
		walk func(n *html.Node)
	)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
			if n.Data == "a" {
				href := strings.TrimSpace(getAttr(n, "href"))
				lower := strings.ToLower(href)
				switch {
				case res.Email == "" && strings.HasPrefix(lower, "mailto:"):
					addr := href[len("mailto:"):]
					if i := strings.IndexByte(addr, '?'); i >= 0 {
						addr = addr[:i]
					}
					if emailRe.MatchString(addr) {
						res.Email = addr
					}
				case res.Phone == "" && strings.HasPrefix(lower, "tel:"):
					res.Phone = strings.TrimSpace(href[len("tel:"):])
				}
			}
		case html.TextNode:
			text.WriteString(n.Data)
			text.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	body := text.String()
	if res.Email == "" {
		res.Email = emailRe.FindString(body)
	}
	if res.Phone == "" {
		res.Phone = strings.TrimSpace(phoneRe.FindString(body))
	}
	return res, nil
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

var _ service.Enricher = (*Scraper)(nil)

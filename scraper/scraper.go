// Package scraper fetches and parses the TMP Murcia news page.
package scraper

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/codeGROOVE-dev/retry"
	"golang.org/x/text/encoding/charmap"

	"tmpmurcia-notifier/pkg/notifier"
)

// DefaultURL is the TMP Murcia "últimas noticias" page.
const DefaultURL = "https://tmpmurcia.es/ultima.asp"

// Alert detail links look like "Cuerpo.asp?codigo=1234"; the codigo value is the
// stable alert identifier.
const detailMarker = "Cuerpo.asp?codigo="

// lineRe matches "Línea 44" (accent and case insensitive) in an alert title.
var lineRe = regexp.MustCompile(`(?i)l[ií]nea\s+(\d+)`)

// HTTPStatusError indicates a non-OK response from the news page.
type HTTPStatusError struct {
	URL    string
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.URL)
}

// Scraper fetches and parses TMP Murcia service alerts.
type Scraper struct {
	client  *http.Client
	logger  *slog.Logger
	pageURL string
}

// New creates a new scraper for the given news page URL.
func New(client *http.Client, pageURL string, logger *slog.Logger) *Scraper {
	if pageURL == "" {
		pageURL = DefaultURL
	}
	return &Scraper{
		client:  client,
		logger:  logger,
		pageURL: pageURL,
	}
}

// FetchAlerts downloads the news page and returns all alerts on it, in page
// order (the source lists newest first). A page that parses to zero alerts is
// an error: the pipeline must be able to tell "source broken" from "no news".
func (s *Scraper) FetchAlerts(ctx context.Context) ([]*notifier.Alert, error) {
	var alerts []*notifier.Alert

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.pageURL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
			req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
			req.Header.Set("Accept-Language", "es-ES,es;q=0.9,en;q=0.8")

			startTime := time.Now()
			resp, err := s.client.Do(req)
			if err != nil {
				s.logger.Warn("News page request failed, will retry", "url", s.pageURL, "error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					s.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			s.logger.Info("News page fetched",
				"url", s.pageURL,
				"status_code", resp.StatusCode,
				"duration_ms", time.Since(startTime).Milliseconds())

			if resp.StatusCode != http.StatusOK {
				statusErr := &HTTPStatusError{URL: s.pageURL, Status: resp.StatusCode}
				// Client errors won't fix themselves within a run
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return retry.Unrecoverable(statusErr)
				}
				return statusErr
			}

			alerts, err = ParseAlerts(resp.Body, s.pageURL, time.Now())
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("parse news page: %w", err))
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(30*time.Second),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Info("Retrying news page fetch after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.pageURL, err)
	}

	s.logger.Info("Alerts scraped", "count", len(alerts))
	return alerts, nil
}

// ParseAlerts extracts alerts from the news page HTML. The page is served as
// ISO-8859-1, so the body is decoded before parsing. detectedAt is stamped on
// every alert; pageURL resolves relative detail links.
func ParseAlerts(body io.Reader, pageURL string, detectedAt time.Time) ([]*notifier.Alert, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page URL: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(charmap.ISO8859_1.NewDecoder().Reader(body))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	var alerts []*notifier.Alert
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		idx := strings.Index(href, detailMarker)
		if idx < 0 {
			return
		}

		code := href[idx+len(detailMarker):]
		if amp := strings.IndexByte(code, '&'); amp >= 0 {
			code = code[:amp]
		}
		title := strings.TrimSpace(sel.Text())
		if code == "" || title == "" || seen[code] {
			return
		}
		seen[code] = true

		detailURL := href
		if ref, err := url.Parse(href); err == nil {
			detailURL = base.ResolveReference(ref).String()
		}

		alerts = append(alerts, &notifier.Alert{
			ID:         code,
			Line:       ExtractLine(title),
			Title:      title,
			URL:        detailURL,
			DetectedAt: detectedAt,
		})
	})

	if len(alerts) == 0 {
		return nil, fmt.Errorf("no alerts found on page (title=%q)", strings.TrimSpace(doc.Find("title").First().Text()))
	}

	return alerts, nil
}

// ExtractLine returns the bus line number mentioned in an alert title, or ""
// when the title names no line (a general alert).
func ExtractLine(title string) string {
	m := lineRe.FindStringSubmatch(title)
	if m == nil {
		return ""
	}
	return m[1]
}

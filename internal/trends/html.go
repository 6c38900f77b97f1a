package trends

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/chimera/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/chimera/infrastructure/retry"
	"github.com/jonesrussell/north-cloud/chimera/internal/domain"
)

// maxHTMLBytes caps the size of a scraped page.
const maxHTMLBytes = 8 << 20

// HTMLSource scrapes trend labels from a web page. Each element matched by
// the selector yields one trend; labels starting with '#' are hashtags.
type HTMLSource struct {
	name        string
	url         string
	selector    string
	defaultType domain.TrendType
	client      *http.Client
	log         logger.Logger
	now         func() time.Time
}

// NewHTMLSource creates an html source.
func NewHTMLSource(name, url, selector string, defaultType domain.TrendType, client *http.Client, log logger.Logger) *HTMLSource {
	if defaultType == "" {
		defaultType = domain.TrendTopic
	}
	return &HTMLSource{
		name: name, url: url, selector: selector, defaultType: defaultType,
		client: client, log: log, now: time.Now,
	}
}

// Name returns the configured source name.
func (s *HTMLSource) Name() string { return s.name }

// Fetch downloads the page and extracts the labels in document order.
func (s *HTMLSource) Fetch(ctx context.Context) ([]domain.Trend, error) {
	resp, err := getDocument(ctx, s.client, s.url, "text/html")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxHTMLBytes))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("parse page %s: %w", s.name, err))
	}

	observed := s.now()
	var out []domain.Trend
	doc.Find(s.selector).Each(func(rank int, sel *goquery.Selection) {
		label := strings.Join(strings.Fields(sel.Text()), " ")
		typ := s.defaultType
		if strings.HasPrefix(label, "#") {
			typ = domain.TrendHashtag
		}

		meta := map[string]any{"rank": rank + 1}
		if href, ok := sel.Attr("href"); ok && href != "" {
			meta["url"] = resolveHref(resp.Request, href)
		}

		tr, err := domain.NewTrend(s.name, typ, label, observed, meta)
		if err != nil {
			s.log.Debug("Dropping invalid trend", logger.String("source", s.name), logger.Error(err))
			return
		}
		out = append(out, tr)
	})
	return out, nil
}

func resolveHref(req *http.Request, href string) string {
	if req == nil || req.URL == nil {
		return href
	}
	u, err := req.URL.Parse(href)
	if err != nil {
		return href
	}
	return u.String()
}

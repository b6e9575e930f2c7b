package clipper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	// DefaultMaxChars bounds the page text carried into a generation prompt.
	DefaultMaxChars = 8000

	maxBodyBytes = 4 << 20
)

// ErrInvalidURL is returned for anything other than an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid url")

// Clip is the readable content of a referenced web page.
type Clip struct {
	URL   string
	Title string
	Text  string
}

// Clipper fetches web pages and reduces them to plain text.
type Clipper struct {
	client   *http.Client
	maxChars int
}

// NewClipper creates a new Clipper instance. A nil client gets a 15s timeout.
func NewClipper(client *http.Client, maxChars int) *Clipper {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Clipper{client: client, maxChars: maxChars}
}

// ClipURL fetches the page at rawURL and extracts its title and readable text.
func (c *Clipper) ClipURL(ctx context.Context, rawURL string) (*Clip, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	doc, err := c.fetch(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch content: %w", err)
	}

	title := strings.TrimSpace(doc.Find(`meta[property="og:title"]`).AttrOr("content", ""))
	if title == "" {
		title = collapse(doc.Find("title").First().Text())
	}

	// Remove noise to save model tokens
	doc.Find("script, style, noscript, nav, header, footer, iframe, form, aside, ads, .ads, #ads").Remove()

	root := doc.Find("article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	return &Clip{
		URL:   u.String(),
		Title: title,
		Text:  truncate(collapse(blockText(root)), c.maxChars),
	}, nil
}

func (c *Clipper) fetch(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch URL: status %d", resp.StatusCode)
	}

	return goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
}

// blockText joins the text of block-level elements with newlines so list items
// and paragraphs do not run together.
func blockText(sel *goquery.Selection) string {
	var lines []string
	sel.Find("h1, h2, h3, h4, p, li").Each(func(_ int, s *goquery.Selection) {
		if line := strings.Join(strings.Fields(s.Text()), " "); line != "" {
			lines = append(lines, line)
		}
	})
	if len(lines) == 0 {
		return sel.Text()
	}
	return strings.Join(lines, "\n")
}

// collapse squeezes runs of whitespace inside each line and drops blank lines.
func collapse(s string) string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}

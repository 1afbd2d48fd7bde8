package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/eezybuild/eezybuild/internal/models"
	"github.com/eezybuild/eezybuild/pkg/logger"
)

type ScraperConfig struct {
	MaxDepth          int
	MaxPages          int
	MaxImagesPerPage  int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	UserAgent         string
	OnProgress        func(url string)
	Logger            *logger.Logger
}

// Scraper crawls one site at a time. All per-crawl state lives in a crawl
// value, so a Scraper can be reused across runs.
type Scraper struct {
	config  ScraperConfig
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

type crawl struct {
	host    string
	visited map[string]bool
	pages   []models.Page
}

func NewWithConfig(config ScraperConfig) *Scraper {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 3
	}
	if config.MaxPages == 0 {
		config.MaxPages = 50
	}
	if config.MaxImagesPerPage == 0 {
		config.MaxImagesPerPage = 10
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2
	}
	if config.UserAgent == "" {
		config.UserAgent = "EezyBuild-Regulations-Crawler/1.0"
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Scraper{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		log:     log.With("component", "scraper"),
	}
}

func New() *Scraper {
	return NewWithConfig(ScraperConfig{})
}

// Crawl follows same-host links from sourceURL up to the depth and page
// limits. Only a failure of the root page is returned; other pages that fail
// are logged and skipped.
func (s *Scraper) Crawl(ctx context.Context, sourceURL string) ([]models.Page, error) {
	root, err := url.Parse(sourceURL)
	if err != nil || root.Host == "" {
		return nil, fmt.Errorf("invalid source url %q", sourceURL)
	}

	c := &crawl{host: root.Host, visited: make(map[string]bool)}
	if err := s.crawlRecursive(ctx, c, normalizeURL(root), 0); err != nil {
		return nil, err
	}
	if len(c.pages) == 0 {
		return nil, fmt.Errorf("no pages crawled from %s", sourceURL)
	}

	s.log.Info("crawl finished", "source_url", sourceURL, "pages", len(c.pages))
	return c.pages, nil
}

func (s *Scraper) crawlRecursive(ctx context.Context, c *crawl, pageURL *url.URL, depth int) error {
	urlStr := pageURL.String()
	if depth > s.config.MaxDepth || c.visited[urlStr] || len(c.pages) >= s.config.MaxPages {
		return nil
	}
	if !s.shouldProcessURL(pageURL, c.host) {
		return nil
	}
	c.visited[urlStr] = true

	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	doc, err := s.fetch(ctx, urlStr)
	if err != nil {
		if depth == 0 || ctx.Err() != nil {
			return err
		}
		s.log.Warn("skipping page", "url", urlStr, "error", err)
		return nil
	}

	c.pages = append(c.pages, s.toPage(doc, pageURL, len(c.pages)+1))

	var links []*url.URL
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, _ := selection.Attr("href")
		link, err := pageURL.Parse(strings.TrimSpace(href))
		if err != nil {
			s.log.Debug("error parsing link", "href", href, "error", err)
			return
		}
		links = append(links, normalizeURL(link))
	})

	for _, link := range links {
		if err := s.crawlRecursive(ctx, c, link, depth+1); err != nil {
			return err
		}
	}
	return nil
}

var errNotHTML = errors.New("not an html page")

func (s *Scraper) fetch(ctx context.Context, urlStr string) (*goquery.Document, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.config.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("received status code %d for URL: %s", resp.StatusCode, urlStr)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("%w: %s", errNotHTML, ct)
	}

	return goquery.NewDocumentFromReader(resp.Body)
}

func (s *Scraper) toPage(doc *goquery.Document, pageURL *url.URL, pageNumber int) models.Page {
	title := s.cleanContent(doc.Find("title").First().Text())
	if title == "" {
		title = s.cleanContent(doc.Find("h1").First().Text())
	}

	main := s.mainContent(doc)
	return models.Page{
		URL:       pageURL.String(),
		Title:     title,
		Markdown:  s.renderMarkdown(main),
		Images:    s.collectImages(main, pageURL, pageNumber),
		FetchedAt: time.Now(),
	}
}

func (s *Scraper) shouldProcessURL(u *url.URL, host string) bool {
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	if u.Host != host {
		return false
	}

	path := strings.ToLower(u.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if strings.HasSuffix(path, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	urlStr := u.String()
	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}
	return true
}

func (s *Scraper) cleanContent(content string) string {
	content = strings.Join(strings.Fields(content), " ")

	noisePatterns := []string{
		"Cookie Policy",
		"Accept Cookies",
		"Accept additional cookies",
		"Reject additional cookies",
		"Privacy Policy",
		"Terms of Service",
	}
	for _, pattern := range noisePatterns {
		content = strings.ReplaceAll(content, pattern, "")
	}

	return strings.TrimSpace(content)
}

func (s *Scraper) mainContent(doc *goquery.Document) *goquery.Selection {
	doc.Find("script, style, noscript, nav, header, footer, form").Remove()

	selectors := []string{
		"main",
		"article",
		".govuk-main-wrapper",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}
	for _, selector := range selectors {
		if selected := doc.Find(selector).First(); selected.Length() > 0 {
			return selected
		}
	}
	return doc.Find("body")
}

// renderMarkdown writes headings as "#" lines, list items as "- " lines and
// every other block as its own paragraph separated by a blank line.
func (s *Scraper) renderMarkdown(sel *goquery.Selection) string {
	var b strings.Builder
	lastWasItem := false

	sel.Find("h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td").Each(func(_ int, el *goquery.Selection) {
		tag := goquery.NodeName(el)
		if tag != "li" && el.ParentsFiltered("li").Length() > 0 {
			return
		}
		if tag == "p" && el.ParentsFiltered("blockquote, td").Length() > 0 {
			return
		}

		var text string
		if tag == "li" {
			text = s.cleanContent(el.Clone().Find("ul, ol").Remove().End().Text())
		} else {
			text = s.cleanContent(el.Text())
		}
		if text == "" {
			return
		}

		isItem := tag == "li"
		if b.Len() > 0 {
			if isItem && lastWasItem {
				b.WriteString("\n")
			} else {
				b.WriteString("\n\n")
			}
		}
		lastWasItem = isItem

		switch tag {
		case "h1", "h2", "h3", "h4", "h5", "h6":
			b.WriteString(strings.Repeat("#", int(tag[1]-'0')) + " " + text)
		case "li":
			b.WriteString("- " + text)
		default:
			b.WriteString(text)
		}
	})

	if b.Len() == 0 {
		return s.cleanContent(sel.Text())
	}
	return b.String()
}

func (s *Scraper) collectImages(sel *goquery.Selection, pageURL *url.URL, pageNumber int) []models.IndexedImage {
	var images []models.IndexedImage
	seen := make(map[string]bool)

	sel.Find("img[src]").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		if len(images) == s.config.MaxImagesPerPage {
			return false
		}
		src := strings.TrimSpace(img.AttrOr("src", ""))
		if src == "" || strings.HasPrefix(src, "data:") {
			return true
		}
		abs, err := pageURL.Parse(src)
		if err != nil || (abs.Scheme != "http" && abs.Scheme != "https") {
			return true
		}
		if seen[abs.String()] {
			return true
		}
		seen[abs.String()] = true

		images = append(images, models.IndexedImage{
			URL:   abs.String(),
			Title: s.cleanContent(img.AttrOr("alt", "")),
			Page:  pageNumber,
		})
		return true
	})
	return images
}

func normalizeURL(u *url.URL) *url.URL {
	n := *u
	n.Fragment = ""
	n.RawFragment = ""
	return &n
}

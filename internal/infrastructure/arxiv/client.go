package arxiv

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ScholarLoop/internal/domain"
	"ScholarLoop/internal/ports"
)

const userAgent = "ScholarLoop/1.0"

// Client searches arxiv.org and materializes paper PDFs into the
// workspace directory.
type Client struct {
	httpClient   *http.Client
	searchURL    string
	baseURL      string
	workspaceDir string
	logger       *slog.Logger
}

var _ ports.DocumentSource = (*Client)(nil)

// NewClient wires an HTTP client; a nil client gets a sane default timeout.
func NewClient(httpClient *http.Client, searchURL, baseURL, workspaceDir string, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		httpClient:   httpClient,
		searchURL:    strings.TrimSuffix(searchURL, "/"),
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		workspaceDir: workspaceDir,
		logger:       logger,
	}
}

// Name identifies the provider inside the source registry.
func (c *Client) Name() string {
	return "arxiv"
}

// Search scrapes the arXiv search results page for the query. Zero hits
// is a valid outcome, not an error.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.Candidate, error) {
	if maxResults <= 0 {
		return nil, nil
	}

	pageURL, err := c.buildSearchURL(query, maxResults)
	if err != nil {
		return nil, err
	}

	doc, err := c.fetchDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	candidates := extractCandidates(doc, maxResults)
	c.debug("search done", "query", query, "hits", len(candidates))
	return candidates, nil
}

// Fetch downloads the PDF for an arXiv identifier into the workspace,
// skipping the download when the file is already materialized.
func (c *Client) Fetch(ctx context.Context, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("fetch: empty id")
	}

	if err := os.MkdirAll(c.workspaceDir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}

	localPath := filepath.Join(c.workspaceDir, safeFileName(id)+".pdf")
	if _, err := os.Stat(localPath); err == nil {
		c.debug("pdf already materialized", "id", id, "path", localPath)
		return localPath, nil
	}

	pdfURL := fmt.Sprintf("%s/pdf/%s", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return "", fmt.Errorf("build pdf request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download pdf %s: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download pdf %s: arxiv returned %s", id, resp.Status)
	}

	tmp, err := os.CreateTemp(c.workspaceDir, ".download-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create pdf temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, resp.Body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write pdf %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close pdf temp: %w", err)
	}
	if err := os.Rename(tmpName, localPath); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("place pdf %s: %w", id, err)
	}

	c.debug("pdf materialized", "id", id, "path", localPath)
	return localPath, nil
}

func (c *Client) buildSearchURL(query string, maxResults int) (string, error) {
	parsed, err := url.Parse(c.searchURL + "/")
	if err != nil {
		return "", fmt.Errorf("invalid search url %s: %w", c.searchURL, err)
	}

	values := parsed.Query()
	values.Set("query", query)
	values.Set("searchtype", "all")
	values.Set("size", strconv.Itoa(searchPageSize(maxResults)))
	parsed.RawQuery = values.Encode()
	return parsed.String(), nil
}

// searchPageSize rounds up to the page sizes arXiv actually serves.
func searchPageSize(maxResults int) int {
	for _, size := range []int{25, 50, 100, 200} {
		if maxResults <= size {
			return size
		}
	}
	return 200
}

func (c *Client) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arxiv returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func extractCandidates(doc *goquery.Document, maxResults int) []domain.Candidate {
	var candidates []domain.Candidate

	doc.Find("li.arxiv-result").EachWithBreak(func(i int, result *goquery.Selection) bool {
		candidate, err := parseResult(result)
		if err != nil {
			return true
		}
		candidates = append(candidates, candidate)
		return len(candidates) < maxResults
	})

	return candidates
}

func parseResult(result *goquery.Selection) (domain.Candidate, error) {
	link := result.Find("p.list-title a").First()

	id := strings.TrimSpace(link.Text())
	id = strings.TrimPrefix(id, "arXiv:")
	href, _ := link.Attr("href")
	if id == "" {
		if href == "" {
			return domain.Candidate{}, fmt.Errorf("result has no identifier")
		}
		id = strings.TrimPrefix(href, "https://arxiv.org/abs/")
	}

	title := strings.TrimSpace(result.Find("p.title").First().Text())

	abstract := strings.TrimSpace(result.Find("span.abstract-full").First().Text())
	if abstract == "" {
		abstract = strings.TrimSpace(result.Find("p.abstract").First().Text())
	}
	abstract = strings.TrimSuffix(abstract, "△ Less")
	abstract = strings.TrimSpace(abstract)

	return domain.Candidate{
		ID:           id,
		Title:        title,
		LocationHint: href,
		Abstract:     abstract,
	}, nil
}

// safeFileName keeps old-style identifiers like "cs/9901001" from
// escaping the workspace directory.
func safeFileName(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}

func (c *Client) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

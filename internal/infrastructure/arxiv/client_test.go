package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

const resultsHTML = `
<ol>
  <li class="arxiv-result">
    <p class="list-title"><a href="https://arxiv.org/abs/2401.00001">arXiv:2401.00001</a></p>
    <p class="title">Reasoning Failures in Large Models</p>
    <span class="abstract-full">We document systematic failures. △ Less</span>
  </li>
  <li class="arxiv-result">
    <p class="list-title"><a href="https://arxiv.org/abs/2401.00002">arXiv:2401.00002</a></p>
    <p class="title">A Second Paper</p>
    <p class="abstract">Shorter abstract.</p>
  </li>
  <li class="arxiv-result">
    <p class="list-title"><a href="https://arxiv.org/abs/2401.00003">arXiv:2401.00003</a></p>
    <p class="title">A Third Paper</p>
  </li>
</ol>`

func TestBuildSearchURL(t *testing.T) {
	t.Parallel()

	c := NewClient(nil, "https://arxiv.org/search/", "https://arxiv.org", t.TempDir(), nil)

	raw, err := c.buildSearchURL("model limitations", 5)
	if err != nil {
		t.Fatalf("buildSearchURL returned error: %v", err)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse result: %v", err)
	}

	q := parsed.Query()
	if q.Get("query") != "model limitations" {
		t.Fatalf("unexpected query: %s", q.Get("query"))
	}
	if q.Get("searchtype") != "all" {
		t.Fatalf("unexpected searchtype: %s", q.Get("searchtype"))
	}
	if q.Get("size") != "25" {
		t.Fatalf("expected size=25, got %s", q.Get("size"))
	}
}

func TestParseResult(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resultsHTML))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	candidate, err := parseResult(doc.Find("li.arxiv-result").First())
	if err != nil {
		t.Fatalf("parseResult error: %v", err)
	}

	if candidate.ID != "2401.00001" {
		t.Fatalf("unexpected id: %s", candidate.ID)
	}
	if candidate.Title != "Reasoning Failures in Large Models" {
		t.Fatalf("unexpected title: %s", candidate.Title)
	}
	if candidate.LocationHint != "https://arxiv.org/abs/2401.00001" {
		t.Fatalf("unexpected location hint: %s", candidate.LocationHint)
	}
	if candidate.Abstract != "We document systematic failures." {
		t.Fatalf("unexpected abstract: %q", candidate.Abstract)
	}
}

func TestSearchCapsResults(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(resultsHTML))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL+"/search/", server.URL, t.TempDir(), nil)

	candidates, err := c.Search(context.Background(), "anything", 2)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}

	if len(candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(candidates))
	}
	if candidates[1].ID != "2401.00002" {
		t.Fatalf("unexpected second id: %s", candidates[1].ID)
	}
}

func TestSearchNoResults(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<ol></ol>`))
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL+"/search/", server.URL, t.TempDir(), nil)

	candidates, err := c.Search(context.Background(), "nothing matches this", 5)
	if err != nil {
		t.Fatalf("Search error: %v", err)
	}
	if len(candidates) != 0 {
		t.Fatalf("expected no candidates, got %d", len(candidates))
	}
}

func TestFetchMaterializesAndSkips(t *testing.T) {
	t.Parallel()

	downloads := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downloads++
		_, _ = w.Write([]byte("%PDF-1.4 fake body"))
	}))
	defer server.Close()

	workspace := t.TempDir()
	c := NewClient(server.Client(), server.URL+"/search/", server.URL, workspace, nil)

	path, err := c.Fetch(context.Background(), "2401.00001")
	if err != nil {
		t.Fatalf("Fetch error: %v", err)
	}
	if filepath.Dir(path) != workspace {
		t.Fatalf("pdf landed outside workspace: %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("pdf not materialized: %v", err)
	}

	again, err := c.Fetch(context.Background(), "2401.00001")
	if err != nil {
		t.Fatalf("second Fetch error: %v", err)
	}
	if again != path {
		t.Fatalf("expected same path, got %s", again)
	}
	if downloads != 1 {
		t.Fatalf("expected 1 download, got %d", downloads)
	}
}

func TestFetchServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL+"/search/", server.URL, t.TempDir(), nil)

	if _, err := c.Fetch(context.Background(), "2401.99999"); err == nil {
		t.Fatal("expected error for missing pdf")
	}
}

func TestSafeFileName(t *testing.T) {
	t.Parallel()

	if got := safeFileName("cs/9901001"); got != "cs_9901001" {
		t.Fatalf("unexpected sanitized name: %s", got)
	}
}

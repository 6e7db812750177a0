// Package harvest collects PDF documents linked from a web page so they
// can be offered for upload.
package harvest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"kb-assistant/internal/api"
	"kb-assistant/internal/pdfcheck"
)

// Result is the outcome of downloading one linked document
type Result struct {
	URL      string
	Name     string
	Data     []byte
	Pages    int
	Err      error
	Duration time.Duration
}

// Options configures a Harvester. Zero values fall back to defaults.
type Options struct {
	Timeout     time.Duration
	MaxWorkers  int
	MaxPageSize int64
	MaxPDFSize  int64
	UserAgent   string
	Logger      *zap.Logger
}

// Harvester fetches a page, finds its PDF links and downloads them
type Harvester struct {
	httpClient  *http.Client
	maxPageSize int64
	maxPDFSize  int64
	userAgent   string
	maxWorkers  int
	logger      *zap.Logger
}

// NewHarvester creates a new harvester instance
func NewHarvester(opts Options) *Harvester {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 5 * 1024 * 1024 // 5 MB
	}
	if opts.MaxPDFSize <= 0 {
		opts.MaxPDFSize = 25 * 1024 * 1024 // 25 MB
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "kb-assistant/1.0"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Harvester{
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Allow up to 10 redirects
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		maxPageSize: opts.MaxPageSize,
		maxPDFSize:  opts.MaxPDFSize,
		userAgent:   opts.UserAgent,
		maxWorkers:  opts.MaxWorkers,
		logger:      opts.Logger.Named("harvest"),
	}
}

// Harvest finds the PDF links on pageURL and downloads every one of them.
// Results are in link order; failed downloads carry Err.
func (h *Harvester) Harvest(ctx context.Context, pageURL string) ([]Result, error) {
	links, err := h.FindPDFLinks(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	h.logger.Info("found PDF links", zap.String("page", pageURL), zap.Int("count", len(links)))
	return h.Download(ctx, links), nil
}

// FindPDFLinks fetches an HTML page and returns the PDF links on it
func (h *Harvester) FindPDFLinks(ctx context.Context, pageURL string) ([]string, error) {
	base, err := url.Parse(pageURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, fmt.Errorf("invalid page URL %q", pageURL)
	}

	body, contentType, err := h.fetch(ctx, pageURL, "text/html,application/xhtml+xml", h.maxPageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", pageURL, err)
	}
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "html") {
		return nil, fmt.Errorf("non-HTML content type: %s", contentType)
	}

	return ExtractPDFLinks(body, base)
}

// Download fetches urls in parallel with a bounded worker pool. Each
// body must parse as a PDF.
func (h *Harvester) Download(ctx context.Context, urls []string) []Result {
	if len(urls) == 0 {
		return []Result{}
	}

	type job struct {
		index int
		url   string
	}
	jobs := make(chan job, len(urls))
	results := make([]Result, len(urls))

	// Determine number of workers (don't exceed number of URLs)
	numWorkers := h.maxWorkers
	if len(urls) < numWorkers {
		numWorkers = len(urls)
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				results[j.index] = h.downloadSingle(ctx, j.url)
			}
		}()
	}

	for i, u := range urls {
		jobs <- job{index: i, url: u}
	}
	close(jobs)
	wg.Wait()

	return results
}

func (h *Harvester) downloadSingle(ctx context.Context, rawURL string) Result {
	start := time.Now()
	result := Result{URL: rawURL, Name: FileName(rawURL)}

	data, _, err := h.fetch(ctx, rawURL, "application/pdf", h.maxPDFSize)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		h.logger.Warn("download failed", zap.String("url", rawURL), zap.Error(err))
		return result
	}

	info, err := pdfcheck.Inspect(data)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		h.logger.Warn("downloaded file is not a usable PDF", zap.String("url", rawURL), zap.Error(err))
		return result
	}

	result.Data = data
	result.Pages = info.Pages
	result.Duration = time.Since(start)
	return result
}

// fetch performs a GET and returns the size-limited body and content type
func (h *Harvester) fetch(ctx context.Context, rawURL, accept string, maxBytes int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := ReadLimitedBody(resp.Body, maxBytes)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read body: %w", err)
	}
	return body, resp.Header.Get("Content-Type"), nil
}

// Files returns the successfully downloaded documents as upload files.
// Links that share a base name get numbered names (notice.pdf,
// notice-2.pdf, ...) so no document is lost in the selection.
func Files(results []Result) []api.FileRef {
	var files []api.FileRef
	used := make(map[string]bool)
	for _, r := range results {
		if r.Err != nil || len(r.Data) == 0 {
			continue
		}
		name := uniqueName(r.Name, used)
		used[strings.ToLower(name)] = true
		files = append(files, api.FileRef{Name: name, Data: r.Data})
	}
	return files
}

func uniqueName(name string, used map[string]bool) string {
	if !used[strings.ToLower(name)] {
		return name
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d%s", stem, n, ext)
		if !used[strings.ToLower(candidate)] {
			return candidate
		}
	}
}

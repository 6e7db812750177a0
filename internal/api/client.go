package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxErrorBody = 512

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// Client talks to the knowledge-base backend
type Client struct {
	baseURL      string
	httpClient   *http.Client
	uploadClient *http.Client
	userAgent    string
	logger       *zap.Logger
}

// Options tunes a Client. Zero values fall back to defaults.
type Options struct {
	Timeout       time.Duration
	UploadTimeout time.Duration
	UserAgent     string
	Logger        *zap.Logger
}

// NewClient creates a new backend client. baseURL is used as given,
// minus any trailing slash.
func NewClient(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 5 * time.Minute
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "kb-assistant/1.0"
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		// PDF batches can take a while to process server-side
		uploadClient: &http.Client{
			Timeout: opts.UploadTimeout,
		},
		userAgent: opts.UserAgent,
		logger:    opts.Logger.Named("api"),
	}
}

// BaseURL returns the backend address this client was built with
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Ask sends one question to the answering service
func (c *Client) Ask(ctx context.Context, query, language string) (*Answer, error) {
	const op = "ask"

	reqBody := AskRequest{Query: query}
	if language != "" && language != "auto" {
		reqBody.Language = language
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, serverFailure(op, fmt.Errorf("failed to marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ask_bot", bytes.NewReader(jsonData))
	if err != nil {
		return nil, networkFailure(op, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")

	var answer Answer
	if err := c.doJSON(c.httpClient, httpReq, op, &answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

// Upload sends all files as one multipart submission. Every part uses
// the field name "file" so the service can treat them as one batch.
func (c *Client) Upload(ctx context.Context, files []FileRef) ([]UploadResult, error) {
	const op = "upload"

	body, contentType, err := encodeMultipart(files)
	if err != nil {
		return nil, serverFailure(op, fmt.Errorf("failed to encode upload: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/admin/upload", body)
	if err != nil {
		return nil, networkFailure(op, fmt.Errorf("failed to create request: %w", err))
	}
	httpReq.Header.Set("Content-Type", contentType)

	var uploadResp UploadResponse
	if err := c.doJSON(c.uploadClient, httpReq, op, &uploadResp); err != nil {
		return nil, err
	}
	if uploadResp.Results == nil {
		return []UploadResult{}, nil
	}
	return uploadResp.Results, nil
}

// ListDocuments fetches the documents currently known to the ingestion service
func (c *Client) ListDocuments(ctx context.Context) ([]Document, error) {
	const op = "list documents"

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/admin/docs", nil)
	if err != nil {
		return nil, networkFailure(op, fmt.Errorf("failed to create request: %w", err))
	}

	var docsResp DocumentsResponse
	if err := c.doJSON(c.httpClient, httpReq, op, &docsResp); err != nil {
		return nil, err
	}
	if docsResp.Documents == nil {
		return []Document{}, nil
	}
	return docsResp.Documents, nil
}

// HealthCheck verifies that the backend is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	const op = "health check"

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return networkFailure(op, fmt.Errorf("failed to create health check request: %w", err))
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return networkFailure(op, fmt.Errorf("backend is unreachable at %s: %w", c.baseURL, err))
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode >= 500 {
		return statusFailure(op, resp.StatusCode, "")
	}
	return nil
}

// doJSON executes req and decodes a 2xx JSON body into out. Every
// error it returns is a *Failure.
func (c *Client) doJSON(hc *http.Client, req *http.Request, op string, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Warn("request failed",
			zap.String("op", op),
			zap.String("url", req.URL.String()),
			zap.Error(err),
		)
		return networkFailure(op, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("unexpected status",
			zap.String("op", op),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", body),
		)
		return statusFailure(op, resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Warn("malformed response",
			zap.String("op", op),
			zap.Error(err),
		)
		return serverFailure(op, fmt.Errorf("failed to parse response: %w", err))
	}

	c.logger.Debug("request completed",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// encodeMultipart builds the multipart body for an upload
func encodeMultipart(files []FileRef) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, quoteEscaper.Replace(f.Name)))
		h.Set("Content-Type", contentTypeFor(f.Name))
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(f.Data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func contentTypeFor(name string) string {
	if strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return "application/pdf"
	}
	return "application/octet-stream"
}

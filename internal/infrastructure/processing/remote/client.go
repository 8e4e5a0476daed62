package remote

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kirillkom/docflow/internal/core/domain"
	"github.com/kirillkom/docflow/internal/core/ports"
	"github.com/kirillkom/docflow/internal/infrastructure/resilience"
)

var _ ports.ProcessingEndpoint = (*Client)(nil)

type Options struct {
	// Timeout bounds one upload or reprocess call. Zero disables it.
	Timeout    time.Duration
	HTTPClient *http.Client
	Executor   *resilience.Executor
}

// Client talks to the document processing API.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	executor := opts.Executor
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    opts.Timeout,
		httpClient: httpClient,
		executor:   executor,
	}
}

// Upload streams the file as multipart form data and reports bytes sent.
// Uploads are never retried here: the body can only be read once.
func (c *Client) Upload(ctx context.Context, file domain.SourceFile, progress func(sent, total int64)) (domain.SubmissionOutcome, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var resp processingResponse
	if err := c.postMultipart(ctx, "/api/upload", file, progress, &resp); err != nil {
		return domain.SubmissionOutcome{}, err
	}
	return resp.outcome("upload")
}

// Reprocess asks the server to run the pipeline again for a stored document.
func (c *Client) Reprocess(ctx context.Context, documentID string) (domain.SubmissionOutcome, error) {
	if strings.TrimSpace(documentID) == "" {
		return domain.SubmissionOutcome{}, domain.WrapError(domain.ErrInvalidInput, "reprocess", fmt.Errorf("document id is required"))
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var resp processingResponse
	path := "/api/process/" + url.PathEscape(documentID)
	err := c.executor.Execute(ctx, "processing_reprocess", func(callCtx context.Context) error {
		resp = processingResponse{}
		return c.doJSON(callCtx, http.MethodPost, path, &resp, "reprocess")
	}, classifyProcessingError)
	if err != nil {
		return domain.SubmissionOutcome{}, wrapTemporaryIfNeeded("reprocess", err)
	}
	return resp.outcome("reprocess")
}

// Document fetches the current server-side state of a document.
func (c *Client) Document(ctx context.Context, documentID string) (*domain.Document, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", fmt.Errorf("document id is required"))
	}

	var resp processingResponse
	path := "/api/document/" + url.PathEscape(documentID)
	err := c.executor.Execute(ctx, "processing_get_document", func(callCtx context.Context) error {
		resp = processingResponse{}
		return c.doJSON(callCtx, http.MethodGet, path, &resp, "get document")
	}, classifyProcessingError)
	if err != nil {
		return nil, wrapTemporaryIfNeeded("get document", err)
	}
	if !resp.Success || resp.Document == nil {
		return nil, fmt.Errorf("get document: %s", resp.failureMessage())
	}
	return resp.Document, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

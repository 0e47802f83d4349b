package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// DefaultProcessTimeout bounds a single webhook processing call.
const DefaultProcessTimeout = 60 * time.Second

const maxWebhookResponseSize = 1 << 20 // 1MB

// ProcessResult is the success shape returned by the embedding webhook.
type ProcessResult struct {
	ChunkCount      int
	DocumentStatus  string
	EmbeddingsModel string
	VectorTable     string
}

// WebhookError is a failure reported by the webhook itself, as opposed
// to a transport error. It maps to the document "error" terminal state
// rather than a rollback.
type WebhookError struct {
	Message    string
	StatusCode int
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook processing failed (status %d): %s", e.StatusCode, e.Message)
}

type webhookResponse struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	HTTPCode int    `json:"statusCode"`
	Document struct {
		ChunkCount      int    `json:"chunk_count"`
		Status          string `json:"status"`
		EmbeddingsModel string `json:"embeddings_model"`
	} `json:"document"`
	Metadata struct {
		VectorTable string `json:"vector_table"`
	} `json:"metadata"`
}

// WebhookClient posts uploaded files to the external embedding webhook.
type WebhookClient struct {
	url        string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
}

// NewWebhookClient builds a client for the processing webhook. If
// timeout is <= 0 it defaults to DefaultProcessTimeout.
func NewWebhookClient(url, apiKey string, timeout time.Duration) *WebhookClient {
	if timeout <= 0 {
		timeout = DefaultProcessTimeout
	}
	return &WebhookClient{
		url:     url,
		apiKey:  apiKey,
		timeout: timeout,
		// The per-call context carries the deadline; the client itself
		// stays unbounded so the context error is the one observed.
		httpClient: &http.Client{},
	}
}

// Process sends {crewCode, docId, file} as multipart form data and
// parses the webhook's verdict. The call is bounded by the client
// timeout; on expiry the returned error wraps
// context.DeadlineExceeded.
func (c *WebhookClient) Process(ctx context.Context, crewCode, docID, filename string, file []byte) (ProcessResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("crewCode", crewCode); err != nil {
		return ProcessResult{}, fmt.Errorf("writing crewCode field: %w", err)
	}
	if err := mw.WriteField("docId", docID); err != nil {
		return ProcessResult{}, fmt.Errorf("writing docId field: %w", err)
	}
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("creating file part: %w", err)
	}
	if _, err := fw.Write(file); err != nil {
		return ProcessResult{}, fmt.Errorf("writing file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return ProcessResult{}, fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, &body)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ProcessResult{}, fmt.Errorf("calling webhook: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponseSize))
	if err != nil {
		return ProcessResult{}, fmt.Errorf("reading webhook response: %w", err)
	}

	var parsed webhookResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ProcessResult{}, fmt.Errorf("decoding webhook response (HTTP %d): %w", resp.StatusCode, err)
	}

	if parsed.Status == "error" || resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code := parsed.HTTPCode
		if code == 0 {
			code = resp.StatusCode
		}
		msg := parsed.Message
		if msg == "" {
			msg = fmt.Sprintf("webhook returned HTTP %d", resp.StatusCode)
		}
		return ProcessResult{}, &WebhookError{Message: msg, StatusCode: code}
	}

	return ProcessResult{
		ChunkCount:      parsed.Document.ChunkCount,
		DocumentStatus:  parsed.Document.Status,
		EmbeddingsModel: parsed.Document.EmbeddingsModel,
		VectorTable:     parsed.Metadata.VectorTable,
	}, nil
}

package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the AssemblyAI v2 REST API root.
const DefaultBaseURL = "https://api.assemblyai.com/v2"

// Client calls an AssemblyAI-compatible transcription API.
// Implements the Transcriber interface.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

type uploadResponse struct {
	UploadURL string `json:"upload_url"`
}

// submitRequest requests sentiment analysis and entity detection for every job.
type submitRequest struct {
	AudioURL          string `json:"audio_url"`
	SentimentAnalysis bool   `json:"sentiment_analysis"`
	EntityDetection   bool   `json:"entity_detection"`
}

// NewClient creates a provider client. An empty baseURL selects DefaultBaseURL.
// timeout bounds each individual HTTP request, not the whole job.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Upload sends raw audio bytes to the provider and returns the upload URL
// used to reference them in a job.
func (c *Client) Upload(ctx context.Context, audio []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(audio))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrUpload, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	var out uploadResponse
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	if out.UploadURL == "" {
		return "", fmt.Errorf("%w: response missing upload_url", ErrUpload)
	}
	return out.UploadURL, nil
}

// Submit creates a transcription job for a previously uploaded file.
func (c *Client) Submit(ctx context.Context, uploadURL string) (*Job, error) {
	body, err := json.Marshal(submitRequest{
		AudioURL:          uploadURL,
		SentimentAnalysis: true,
		EntityDetection:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", ErrSubmission, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrSubmission, err)
	}
	req.Header.Set("Content-Type", "application/json")

	var job Job
	if err := c.do(req, &job); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	if job.ID == "" {
		return nil, fmt.Errorf("%w: response missing job id", ErrSubmission)
	}
	return &job, nil
}

// Status fetches the current state of a job. The returned Result carries the
// full transcript only once Status is StatusCompleted.
func (c *Client) Status(ctx context.Context, jobID string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transcript/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrPoll, err)
	}

	var res Result
	if err := c.do(req, &res); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPoll, err)
	}
	return &res, nil
}

// do sends an authorized request and decodes a 2xx JSON body into out.
func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("provider API error (status %d): %s", resp.StatusCode, truncate(string(body), 512))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

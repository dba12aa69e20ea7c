// Package transcribe talks to the remote speech recognition service: task
// submission with retry, status polling, and transcript export.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"audio-workbench/internal/domain"
)

const (
	DefaultBaseURL    = "https://openspeech.bytedance.com/api/v3/auc/bigmodel"
	DefaultResourceID = "volc.bigasr.auc"

	StatusComplete   = "20000000"
	StatusProcessing = "20000001"
	StatusQueued     = "20000002"

	headerAppKey     = "X-Api-App-Key"
	headerAccessKey  = "X-Api-Access-Key"
	headerResourceID = "X-Api-Resource-Id"
	headerRequestID  = "X-Api-Request-Id"
	headerSequence   = "X-Api-Sequence"
	headerStatusCode = "X-Api-Status-Code"
	headerMessage    = "X-Api-Message"
	headerLogID      = "X-Tt-Logid"

	maxErrorBody = 1024
)

var knownFormats = map[string]bool{"mp3": true, "wav": true, "ogg": true, "flac": true, "pcm": true}

// Task identifies a submitted transcription task.
type Task struct {
	ID    string `json:"id"`
	LogID string `json:"logId,omitempty"`
}

// QueryResult is one status answer. Body is set when Code is complete.
type QueryResult struct {
	Code    string
	Message string
	Body    []byte
}

// Client calls the submit and query endpoints.
type Client struct {
	appID       string
	accessToken string
	resourceID  string
	baseURL     string
	http        *http.Client
	newID       func() string
}

// NewClient validates creds and builds a client.
func NewClient(creds domain.SpeechCredentials, httpClient *http.Client) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	resourceID := creds.ResourceID
	if resourceID == "" {
		resourceID = DefaultResourceID
	}
	baseURL := strings.TrimSuffix(creds.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		appID:       creds.AppID,
		accessToken: creds.AccessToken,
		resourceID:  resourceID,
		baseURL:     baseURL,
		http:        httpClient,
		newID:       uuid.NewString,
	}, nil
}

type submitRequest struct {
	User    submitUser    `json:"user"`
	Audio   submitAudio   `json:"audio"`
	Request submitOptions `json:"request"`
}

type submitUser struct {
	UID string `json:"uid"`
}

type submitAudio struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

type submitOptions struct {
	ModelName         string `json:"model_name"`
	EnableITN         bool   `json:"enable_itn"`
	EnablePunc        bool   `json:"enable_punc"`
	EnableSpeakerInfo bool   `json:"enable_speaker_info"`
	ShowUtterances    bool   `json:"show_utterances"`
}

// Submit creates a task for the audio at url. An empty format is inferred
// from the URL extension.
func (c *Client) Submit(ctx context.Context, audioURL, format string) (Task, error) {
	if format == "" {
		format = InferFormat(audioURL)
	}
	requestID := c.newID()
	body := submitRequest{
		User:  submitUser{UID: numericUID()},
		Audio: submitAudio{URL: audioURL, Format: format},
		Request: submitOptions{
			ModelName:         "bigmodel",
			EnableITN:         true,
			EnablePunc:        true,
			EnableSpeakerInfo: true,
			ShowUtterances:    true,
		},
	}

	resp, err := c.post(ctx, "/submit", requestID, "", body)
	if err != nil {
		return Task{}, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusInternalServerError {
		return Task{}, &APIError{Step: "submit", StatusCode: resp.StatusCode, Response: resp.Status}
	}
	code := resp.Header.Get(headerStatusCode)
	if code != StatusComplete {
		return Task{}, &StatusError{Step: "submit", Code: code, Message: resp.Header.Get(headerMessage)}
	}
	return Task{ID: requestID, LogID: resp.Header.Get(headerLogID)}, nil
}

// Query fetches the current status of task. Transport failures and 5xx
// responses are returned as errors; service status codes are in the result.
func (c *Client) Query(ctx context.Context, task Task) (QueryResult, error) {
	resp, err := c.post(ctx, "/query", task.ID, task.LogID, struct{}{})
	if err != nil {
		return QueryResult{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return QueryResult{}, fmt.Errorf("read query response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return QueryResult{}, &APIError{Step: "query", StatusCode: resp.StatusCode, Response: truncate(string(data))}
	}

	result := QueryResult{
		Code:    resp.Header.Get(headerStatusCode),
		Message: resp.Header.Get(headerMessage),
	}
	if result.Code == StatusComplete {
		result.Body = data
	}
	return result, nil
}

// post sends one authenticated JSON request.
func (c *Client) post(ctx context.Context, endpoint, requestID, logID string, payload any) (*http.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerAppKey, c.appID)
	req.Header.Set(headerAccessKey, c.accessToken)
	req.Header.Set(headerResourceID, c.resourceID)
	req.Header.Set(headerRequestID, requestID)
	if endpoint == "/submit" {
		req.Header.Set(headerSequence, "-1")
	}
	if logID != "" {
		req.Header.Set(headerLogID, logID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", strings.TrimPrefix(endpoint, "/"), err)
	}
	return resp, nil
}

// InferFormat returns the audio format named by the URL's extension, or mp3.
func InferFormat(audioURL string) string {
	p := audioURL
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if knownFormats[ext] {
		return ext
	}
	return "mp3"
}

// numericUID renders a random uuid as a decimal integer string.
func numericUID() string {
	id := uuid.New()
	return new(big.Int).SetBytes(id[:]).String()
}

func truncate(s string) string {
	if len(s) > maxErrorBody {
		return s[:maxErrorBody]
	}
	return s
}

// Package vision extracts grocery receipts from photos through the Gemini generateContent API.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"

	"casa/internal/core"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-3-flash-preview"

	apiKeyHeader = "x-goog-api-key"
	contentType  = "application/json"
)

var (
	// ErrUpstream marks failures of the vision service itself, as opposed to bad client input.
	ErrUpstream = errors.New("vision service failed")
	// ErrNoJSON is returned when the model answered without a JSON object.
	ErrNoJSON = fmt.Errorf("%w: no valid JSON in model response", ErrUpstream)
	// ErrInvalidReceipt is returned when the model's JSON does not match the receipt schema.
	ErrInvalidReceipt = fmt.Errorf("%w: extracted data does not match receipt schema", ErrUpstream)
)

// Config configures the Gemini client. Zero values fall back to defaults.
type Config struct {
	APIKey       string
	Model        string
	BaseURL      string
	Timeout      time.Duration
	MaxRetries   int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

// GeminiClient implements receipt extraction with retries on transport failures and 5xx/429 answers.
type GeminiClient struct {
	apiKey    string
	model     string
	baseURL   string
	http      *retryablehttp.Client
	validator *ReceiptValidator
}

func NewGeminiClient(cfg Config) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	validator, err := NewReceiptValidator()
	if err != nil {
		return nil, err
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	rc.RetryMax = cfg.MaxRetries
	if cfg.RetryWaitMin > 0 {
		rc.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		rc.RetryWaitMax = cfg.RetryWaitMax
	}
	rc.Logger = slog.Default().With("component", "vision")

	return &GeminiClient{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		http:      rc,
		validator: validator,
	}, nil
}

type (
	inlineData struct {
		MimeType string `json:"mime_type"`
		Data     string `json:"data"`
	}

	part struct {
		Text       string      `json:"text,omitempty"`
		InlineData *inlineData `json:"inline_data,omitempty"`
	}

	content struct {
		Parts []part `json:"parts"`
	}

	generateRequest struct {
		Contents         []content `json:"contents"`
		GenerationConfig struct {
			ResponseMimeType string `json:"responseMimeType"`
		} `json:"generationConfig"`
	}

	generateResponse struct {
		Candidates []struct {
			Content      content `json:"content"`
			FinishReason string  `json:"finishReason"`
		} `json:"candidates"`
	}

	apiError struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
)

// Extract sends the images with the extraction prompt and returns the schema-checked receipt.
// Several images are treated as parts of one long receipt.
func (c *GeminiClient) Extract(ctx context.Context, images []string) (core.ReceiptData, error) {
	prompt := singleImagePrompt
	if len(images) > 1 {
		prompt = multiImagePrompt
	}
	parts := []part{{Text: prompt}}
	for _, img := range images {
		data := stripDataURL(img)
		parts = append(parts, part{InlineData: &inlineData{MimeType: detectMimeType(data), Data: data}})
	}
	req := generateRequest{Contents: []content{{Parts: parts}}}
	req.GenerationConfig.ResponseMimeType = contentType

	body, err := json.Marshal(req)
	if err != nil {
		return core.ReceiptData{}, errors.Wrap(err, "failed to marshal request")
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, c.model)
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return core.ReceiptData{}, errors.Wrap(err, "failed to create request")
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set(apiKeyHeader, c.apiKey)

	slog.DebugContext(ctx, "Sending images to Gemini API", "image_count", len(images), "model", c.model)
	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return core.ReceiptData{}, errors.Wrapf(ErrUpstream, "request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return core.ReceiptData{}, errors.Wrap(err, "failed to read response")
	}
	slog.DebugContext(ctx, "Gemini API response received",
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"size", len(respBody))

	if resp.StatusCode != http.StatusOK {
		return core.ReceiptData{}, handleHTTPError(resp.StatusCode, respBody)
	}

	var gr generateResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return core.ReceiptData{}, errors.Wrapf(ErrUpstream, "failed to parse response: %v", err)
	}
	text := responseText(gr)
	raw, ok := extractJSON(text)
	if !ok {
		slog.ErrorContext(ctx, "No valid JSON found in Gemini response", "response_length", len(text))
		return core.ReceiptData{}, ErrNoJSON
	}
	rd, err := c.validator.Decode(raw)
	if err != nil {
		slog.ErrorContext(ctx, "Gemini response failed schema validation", "error", err)
		return core.ReceiptData{}, err
	}
	return rd, nil
}

func responseText(gr generateResponse) string {
	var sb strings.Builder
	for _, cand := range gr.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}
	return sb.String()
}

func handleHTTPError(status int, body []byte) error {
	var e apiError
	_ = json.Unmarshal(body, &e)
	msg := e.Error.Message
	if msg == "" {
		msg = http.StatusText(status)
	}
	return errors.Wrapf(ErrUpstream, "gemini returned %d: %s", status, msg)
}

// stripDataURL drops a "data:image/png;base64," prefix if the client sent one.
func stripDataURL(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

// detectMimeType guesses the image type from the base64 magic bytes.
func detectMimeType(b64 string) string {
	switch {
	case strings.HasPrefix(b64, "iVBOR"):
		return "image/png"
	case strings.HasPrefix(b64, "R0lGOD"):
		return "image/gif"
	case strings.HasPrefix(b64, "UklGR"):
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

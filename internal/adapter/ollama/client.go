package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"codepilot/config"
	"codepilot/internal/domain"
	"codepilot/internal/port"

	"github.com/rs/zerolog/log"
)

const availabilityTimeout = 5 * time.Second

// Settings is the slice of the settings store the client reads on every call.
type Settings interface {
	Get() *config.Config
}

// Client talks to an Ollama-compatible inference server. Model, base URL and
// timeout are read from the live settings on each call.
type Client struct {
	settings Settings
	http     *http.Client
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Options generateOptions `json:"options"`
	Stream  bool            `json:"stream"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
	TopP        float64 `json:"top_p"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type tagsResponse struct {
	Models []domain.ModelDescriptor `json:"models"`
}

func NewClient(settings Settings) *Client {
	return NewClientWithHTTP(settings, &http.Client{})
}

// NewClientWithHTTP lets callers supply their own transport. Timeouts are
// enforced per call through the request context, not the http.Client.
func NewClientWithHTTP(settings Settings, hc *http.Client) *Client {
	return &Client{settings: settings, http: hc}
}

func (c *Client) baseURL() string {
	return strings.TrimSuffix(c.settings.Get().BaseURL, "/")
}

// CheckAvailability reports whether the server answers the model listing
// endpoint within a short timeout.
func (c *Client) CheckAvailability(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().Err(err).Msg("inference server unavailable")
		return false
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// ListModels returns the installed models, or an empty list on any failure.
func (c *Client) ListModels(ctx context.Context) []domain.ModelDescriptor {
	ctx, cancel := context.WithTimeout(ctx, c.settings.Get().RequestTimeout())
	defer cancel()

	models := []domain.ModelDescriptor{}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/api/tags", nil)
	if err != nil {
		return models
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("failed to list models")
		return models
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Int("status", resp.StatusCode).Msg("failed to list models")
		return models
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		log.Warn().Err(err).Msg("failed to decode model list")
		return models
	}
	if tags.Models == nil {
		return models
	}
	return tags.Models
}

// Generate sends one non-streaming request. There is no retry and no
// queuing: exactly one request is in flight for the duration of the call.
func (c *Client) Generate(ctx context.Context, req domain.InferenceRequest) domain.InferenceResult {
	req.Options.Stream = false

	callCtx, cancel := context.WithTimeout(ctx, c.settings.Get().RequestTimeout())
	defer cancel()

	resp, ierr := c.send(ctx, callCtx, req)
	if ierr != nil {
		return domain.InferenceResult{Err: ierr}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.InferenceResult{Err: classify(ctx, callCtx, err)}
	}

	var out generateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return domain.InferenceResult{Err: &domain.InferenceError{
			Kind:   domain.KindServerError,
			Status: resp.StatusCode,
			Err:    fmt.Errorf("failed to parse response (body: %s): %w", preview(body), err),
		}}
	}
	if out.Error != "" {
		return domain.InferenceResult{Err: &domain.InferenceError{
			Kind:   domain.KindServerError,
			Status: resp.StatusCode,
			Err:    errors.New(out.Error),
		}}
	}

	log.Debug().Str("model", c.model(req)).Int("chars", len(out.Response)).Msg("generate completed")
	return domain.InferenceResult{Text: out.Response}
}

// GenerateStreaming delivers fragments to onChunk as they arrive and returns
// the full concatenated text. Lines that do not decode are dropped.
func (c *Client) GenerateStreaming(ctx context.Context, req domain.InferenceRequest, onChunk func(string)) (string, error) {
	req.Options.Stream = true

	callCtx, cancel := context.WithTimeout(ctx, c.settings.Get().RequestTimeout())
	defer cancel()

	resp, ierr := c.send(ctx, callCtx, req)
	if ierr != nil {
		return "", ierr
	}
	defer resp.Body.Close()

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frag generateResponse
		if err := json.Unmarshal(line, &frag); err != nil {
			continue
		}
		if frag.Error != "" {
			return full.String(), &domain.InferenceError{
				Kind:   domain.KindServerError,
				Status: resp.StatusCode,
				Err:    errors.New(frag.Error),
			}
		}
		if frag.Response != "" {
			full.WriteString(frag.Response)
			if onChunk != nil {
				onChunk(frag.Response)
			}
		}
		if frag.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return full.String(), classify(ctx, callCtx, err)
	}

	return full.String(), nil
}

func (c *Client) model(req domain.InferenceRequest) string {
	if req.Model != "" {
		return req.Model
	}
	return c.settings.Get().Model
}

// send performs the POST and maps transport failures and non-2xx answers
// onto the error taxonomy. On success the caller owns resp.Body.
func (c *Client) send(parent, callCtx context.Context, req domain.InferenceRequest) (*http.Response, *domain.InferenceError) {
	payload := generateRequest{
		Model:  c.model(req),
		Prompt: req.Prompt,
		Options: generateOptions{
			Temperature: req.Options.Temperature,
			NumPredict:  req.Options.MaxTokens,
			TopP:        req.Options.TopP,
		},
		Stream: req.Options.Stream,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, &domain.InferenceError{Kind: domain.KindUnreachable, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL()+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return nil, &domain.InferenceError{Kind: domain.KindUnreachable, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, classify(parent, callCtx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return nil, &domain.InferenceError{
			Kind:   domain.KindServerError,
			Status: resp.StatusCode,
			Err:    &domain.ServerError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))},
		}
	}

	return resp, nil
}

// classify distinguishes a caller abort from the per-call deadline and from
// plain transport failure.
func classify(parent, callCtx context.Context, err error) *domain.InferenceError {
	switch {
	case parent.Err() != nil:
		return &domain.InferenceError{Kind: domain.KindCancelled, Err: parent.Err()}
	case errors.Is(callCtx.Err(), context.DeadlineExceeded):
		return &domain.InferenceError{Kind: domain.KindTimeout, Err: err}
	default:
		return &domain.InferenceError{Kind: domain.KindUnreachable, Err: err}
	}
}

func preview(body []byte) string {
	if len(body) > 200 {
		return string(body[:200])
	}
	return string(body)
}

var (
	_ port.Generator       = (*Client)(nil)
	_ port.StreamGenerator = (*Client)(nil)
	_ port.ModelCatalog    = (*Client)(nil)
)

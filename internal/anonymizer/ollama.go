/*
PURPOSE:
  Anonymizer backend for Ollama servers.
  Rewrites texts through the non-streaming /api/generate endpoint and
  discovers installed models through /api/tags.

REQUIREMENTS:
  User-specified:
  - Use local models as anonymizers.
  - Forward the run seed and device selection.

  Implementation-discovered:
  - Needs http.Client with timeouts; model loading happens before the first header.
  - Retries with a fixed delay; garbage JSON is an error, not a silent empty rewrite.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (through the Anonymizer interface), internal/cli
  - Built by: internal/anonymizer/factory.go

ERROR HANDLING:
  - Classifies header timeouts separately from connection errors.
  - Returns the last error after MaxRetries attempts.

IMPLEMENTATION RULES:
  - Use net/http.
  - Enforce timeouts.

USAGE:
  o := anonymizer.NewOllama(anonymizer.OllamaOptions{URL: "http://localhost:11434", Model: "llama3.1:8b"})
  out, err := o.Anonymize(ctx, text)

RELATED FILES:
  - internal/anonymizer/factory.go
  - internal/cli/list_models.go

MAINTENANCE:
  - Update if the Ollama API changes (/api/tags, /api/generate).
*/

package anonymizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/daryltucker/tau-eval/internal/output"
)

// OllamaOptions configures an Ollama backend.
type OllamaOptions struct {
	Name       string
	URL        string
	Model      string
	Prompt     string
	MaxRetries int
	RetryDelay time.Duration
	// LoadTimeout bounds the wait for response headers, which covers model loading.
	LoadTimeout time.Duration
	Timeout     time.Duration
	// Options is passed through as the request "options" object.
	Options map[string]interface{}
}

// Ollama rewrites texts with a model served by Ollama.
type Ollama struct {
	opts   OllamaOptions
	client *http.Client
}

// NewOllama creates a new Ollama backend.
func NewOllama(opts OllamaOptions) *Ollama {
	if opts.URL == "" {
		opts.URL = "http://localhost:11434"
	}
	opts.URL = strings.TrimRight(opts.URL, "/")
	if opts.Name == "" {
		opts.Name = opts.Model
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 2 * time.Second
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = 5 * time.Minute
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}

	// ResponseHeaderTimeout covers the time until the first response byte,
	// which is where model loading happens.
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = opts.LoadTimeout

	return &Ollama{
		opts: opts,
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.LoadTimeout + opts.Timeout,
		},
	}
}

func (o *Ollama) Name() string { return o.opts.Name }

// Anonymize runs one non-streaming generation.
func (o *Ollama) Anonymize(ctx context.Context, text string) (string, error) {
	reqBody, err := json.Marshal(map[string]interface{}{
		"model":   o.opts.Model,
		"prompt":  renderPrompt(o.opts.Prompt, text),
		"stream":  false,
		"options": o.opts.Options,
	})
	if err != nil {
		return "", err
	}

	var lastErr error
	for i := 0; i < o.opts.MaxRetries; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(o.opts.RetryDelay):
			}
			output.Logger.Info("Retrying generation...", "model", o.opts.Model, "attempt", i+1)
		}

		resp, err := o.generate(ctx, reqBody)
		if err == nil {
			return strings.TrimSpace(resp), nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return "", lastErr
}

func (o *Ollama) generate(ctx context.Context, reqBody []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.opts.URL+"/api/generate", bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if strings.Contains(err.Error(), "awaiting headers") {
			return "", fmt.Errorf("ollama header timeout (model loading?): %w", err)
		}
		return "", fmt.Errorf("ollama connection error: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama server error (%s): %s", resp.Status, string(body))
	}

	var data struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
		Error    string `json:"error"`
	}
	if err := json.Unmarshal(body, &data); err != nil {
		return "", fmt.Errorf("ollama returned invalid JSON: %w (body: %s)", err, string(body))
	}
	if data.Error != "" {
		return "", fmt.Errorf("ollama API error: %s", data.Error)
	}
	if !data.Done {
		return "", fmt.Errorf("ollama generation incomplete")
	}
	return data.Response, nil
}

// ListOllamaModels returns the models installed on an Ollama host.
func ListOllamaModels(ctx context.Context, client *http.Client, baseURL string) ([]string, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(baseURL, "/")+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

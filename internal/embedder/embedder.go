// Package embedder calls an OpenAI-compatible embeddings endpoint.
//
// Grounded on the teacher's embedding client: a minimal request/response
// shape, context-scoped timeouts, and header-name-driven auth so either a
// bearer Authorization header or a custom API-key header can be used.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ragservice/internal/apperr"
)

// Config configures one embeddings endpoint.
type Config struct {
	BaseURL   string
	Model     string
	APIKey    string
	APIHeader string // e.g. "Authorization" or "X-API-Key"; empty disables auth
	Timeout   time.Duration
}

// Client calls an OpenAI-compatible /embeddings endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// New builds a Client; a zero Timeout defaults to 30s.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{cfg: cfg, httpClient: &http.Client{}}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedDatum struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embedResponse struct {
	Data []embedDatum `json:"data"`
}

// Embed returns one embedding vector per input string, preserving order.
func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: c.cfg.Model, Input: inputs})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "marshal embed request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "build embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyTransient, "call embeddings endpoint", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindDependencyTransient, "read embeddings response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.New(apperr.KindDependencyFatal,
			fmt.Sprintf("embeddings endpoint returned %d: %s", resp.StatusCode, string(respBody)))
	}

	var er embedResponse
	if err := json.Unmarshal(respBody, &er); err != nil {
		return nil, apperr.Wrap(apperr.KindMalformedUpstream, "decode embeddings response", err)
	}
	if len(er.Data) != len(inputs) {
		return nil, apperr.New(apperr.KindMalformedUpstream,
			fmt.Sprintf("embeddings endpoint returned %d vectors for %d inputs", len(er.Data), len(inputs)))
	}

	out := make([][]float32, len(inputs))
	for _, d := range er.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, apperr.New(apperr.KindMalformedUpstream, "embeddings response index out of range")
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

func (c *Client) setAuth(req *http.Request) {
	if c.cfg.APIHeader == "" || c.cfg.APIKey == "" {
		return
	}
	if c.cfg.APIHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		return
	}
	req.Header.Set(c.cfg.APIHeader, c.cfg.APIKey)
}

// CheckReachability sends a one-token probe embedding to confirm the
// endpoint is reachable and credentials are valid.
func (c *Client) CheckReachability(ctx context.Context) error {
	_, err := c.Embed(ctx, []string{"ping"})
	return err
}

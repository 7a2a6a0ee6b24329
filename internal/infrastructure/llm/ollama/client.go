// Package ollama adapts an Ollama server to the chat-provider and embedder
// ports. Two Client instances back the primary and secondary providers.
package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/okutan/corpusqa/internal/infrastructure/resilience"
)

type Client struct {
	name       string
	baseURL    string
	chatModel  string
	embedModel string
	httpClient *http.Client
	exec       *resilience.Executor
}

// New builds a provider. name identifies the instance in logs, audit
// records and failover decisions; it also namespaces the circuit breakers,
// so the primary and the secondary trip independently.
func New(name, baseURL, chatModel, embedModel string, exec *resilience.Executor) *Client {
	return &Client{
		name:       name,
		baseURL:    strings.TrimRight(baseURL, "/"),
		chatModel:  chatModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		exec:       exec,
	}
}

func (c *Client) Name() string { return c.name }

// ChatModel reports the configured generation model, used in cache key
// fingerprints.
func (c *Client) ChatModel() string { return c.chatModel }

// EmbedModel reports the configured embedding model, used in cache key
// fingerprints.
func (c *Client) EmbedModel() string { return c.embedModel }

func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, map[string]any{
		"model":  c.chatModel,
		"prompt": prompt,
		"stream": false,
	})
}

// CompleteJSON constrains decoding to JSON output. Callers still validate
// the payload; small models drift.
func (c *Client) CompleteJSON(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, map[string]any{
		"model":  c.chatModel,
		"prompt": prompt,
		"stream": false,
		"format": "json",
	})
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	request := map[string]any{
		"model": c.embedModel,
		"input": []string{text},
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	op := c.name + " embed"
	err := c.runResilient(ctx, op, func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/embed", request, &response, "embed")
	})
	if err != nil {
		return nil, err
	}
	if len(response.Embeddings) == 0 {
		return nil, fmt.Errorf("%s: empty embedding result", op)
	}
	return response.Embeddings[0], nil
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	op := c.name + " generate"
	err := c.runResilient(ctx, op, func(callCtx context.Context) error {
		return c.postJSON(callCtx, "/api/generate", reqBody, &response, "generate")
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) runResilient(ctx context.Context, op string, call func(context.Context) error) error {
	if c.exec == nil {
		return wrapTemporaryIfNeeded(op, call(ctx))
	}
	err := c.exec.Run(ctx, op, call, classifyProviderError)
	return wrapTemporaryIfNeeded(op, err)
}

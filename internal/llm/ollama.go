package llm

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

type Ollama struct {
	client *api.Client
}

// NewOllama accepts either a bare host:port or a full URL.
func NewOllama(baseURL string) (*Ollama, error) {
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Ollama{client: api.NewClient(u, &http.Client{})}, nil
}

func (o *Ollama) Invoke(ctx context.Context, req Request) (string, error) {
	stream := false
	options := map[string]any{}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.Temperature != nil {
		options["temperature"] = *req.Temperature
	}

	gen := &api.GenerateRequest{
		Model:   req.Model,
		System:  req.System,
		Prompt:  req.Prompt,
		Stream:  &stream,
		Options: options,
	}

	var b strings.Builder
	err := o.client.Generate(ctx, gen, func(resp api.GenerateResponse) error {
		b.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", err
	}

	return b.String(), nil
}

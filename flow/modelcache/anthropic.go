package modelcache

import (
	"context"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flowforge/flowcore/flow/store"
)

// anthropicPricing is a static per-1M-token cost table for known Claude
// models, used as CostPerUnit's source when the API doesn't return one.
// Prices are in USD per 1M output tokens (the dominant cost driver).
var anthropicPricing = map[string]float64{
	"claude-3-5-sonnet-20241022": 15.00,
	"claude-3-opus-20240229":     75.00,
	"claude-3-sonnet-20240229":   15.00,
	"claude-3-haiku-20240307":    1.25,
}

// AnthropicCatalog is a SchemaSource backed by Anthropic's model listing
// API. apiKey may be empty in which case FetchSchemas returns an error,
// so Sync can skip it without the whole operation failing.
type AnthropicCatalog struct {
	apiKey string
	client anthropicModelLister
}

// anthropicModelLister narrows the SDK client to the one call this
// adapter needs, so tests can substitute a fake without a live API key.
type anthropicModelLister interface {
	listModels(ctx context.Context) ([]anthropicsdk.ModelInfo, error)
}

// NewAnthropicCatalog builds a catalog adapter for the given API key.
func NewAnthropicCatalog(apiKey string) *AnthropicCatalog {
	return &AnthropicCatalog{apiKey: apiKey, client: &defaultAnthropicClient{apiKey: apiKey}}
}

func (c *AnthropicCatalog) Name() string { return "anthropic" }

func (c *AnthropicCatalog) FetchSchemas(ctx context.Context) ([]store.ModelSchema, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("modelcache: anthropic API key is required")
	}

	models, err := c.client.listModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("modelcache: anthropic list models: %w", err)
	}

	out := make([]store.ModelSchema, 0, len(models))
	for _, m := range models {
		schema := store.ModelSchema{
			ID:          m.ID,
			Provider:    c.Name(),
			DisplayName: m.DisplayName,
			Category:    "chat",
			ParamsSchema: map[string]interface{}{
				"maxTokens": map[string]interface{}{"type": "integer", "default": 4096},
			},
		}
		if cost, ok := anthropicPricing[m.ID]; ok {
			costCopy := cost
			schema.CostPerUnit = &costCopy
		}
		out = append(out, schema)
	}
	return out, nil
}

// defaultAnthropicClient wraps the official Anthropic SDK client.
type defaultAnthropicClient struct {
	apiKey string
}

func (c *defaultAnthropicClient) listModels(ctx context.Context) ([]anthropicsdk.ModelInfo, error) {
	client := anthropicsdk.NewClient(option.WithAPIKey(c.apiKey))

	var models []anthropicsdk.ModelInfo
	page, err := client.Models.List(ctx, anthropicsdk.ModelListParams{})
	if err != nil {
		return nil, err
	}
	for page != nil {
		models = append(models, page.Data...)
		page, err = page.GetNextPage()
		if err != nil {
			return nil, err
		}
	}
	return models, nil
}

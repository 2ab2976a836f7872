package modelcache

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/flowforge/flowcore/flow/store"
)

// openaiPricing is a static per-1M-token output cost table for known GPT
// models, used as CostPerUnit's source when the API doesn't return one.
var openaiPricing = map[string]float64{
	"gpt-4o":                 10.00,
	"gpt-4o-2024-08-06":      10.00,
	"gpt-4o-mini":            0.60,
	"gpt-4-turbo":            30.00,
	"gpt-4-turbo-2024-04-09": 30.00,
	"gpt-3.5-turbo":          1.50,
}

// OpenAICatalog is a SchemaSource backed by OpenAI's model listing API.
type OpenAICatalog struct {
	apiKey string
	client openaiModelLister
}

type openaiModelLister interface {
	listModels(ctx context.Context) ([]openai.Model, error)
}

// NewOpenAICatalog builds a catalog adapter for the given API key.
func NewOpenAICatalog(apiKey string) *OpenAICatalog {
	return &OpenAICatalog{apiKey: apiKey, client: &defaultOpenAIClient{apiKey: apiKey}}
}

func (c *OpenAICatalog) Name() string { return "openai" }

func (c *OpenAICatalog) FetchSchemas(ctx context.Context) ([]store.ModelSchema, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("modelcache: openai API key is required")
	}

	models, err := c.client.listModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("modelcache: openai list models: %w", err)
	}

	out := make([]store.ModelSchema, 0, len(models))
	for _, m := range models {
		schema := store.ModelSchema{
			ID:          m.ID,
			Provider:    c.Name(),
			DisplayName: m.ID,
			Category:    "chat",
			ParamsSchema: map[string]interface{}{
				"temperature": map[string]interface{}{"type": "number", "default": 1.0},
			},
		}
		if cost, ok := openaiPricing[m.ID]; ok {
			costCopy := cost
			schema.CostPerUnit = &costCopy
		}
		out = append(out, schema)
	}
	return out, nil
}

// defaultOpenAIClient wraps the official OpenAI SDK client.
type defaultOpenAIClient struct {
	apiKey string
}

func (c *defaultOpenAIClient) listModels(ctx context.Context) ([]openai.Model, error) {
	client := openai.NewClient(option.WithAPIKey(c.apiKey))

	var models []openai.Model
	page, err := client.Models.List(ctx)
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

package modelcache

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/flowforge/flowcore/flow/store"
)

// googlePricing is a static per-1M-token output cost table for known
// Gemini models, used as CostPerUnit's source when the API doesn't
// return one.
var googlePricing = map[string]float64{
	"gemini-1.5-pro":     5.00,
	"gemini-1.5-pro-001": 5.00,
	"gemini-1.5-flash":   0.30,
	"gemini-1.0-pro":     1.50,
}

// GoogleCatalog is a SchemaSource backed by Google's generative AI model
// listing API.
type GoogleCatalog struct {
	apiKey string
	client googleModelLister
}

type googleModelLister interface {
	listModels(ctx context.Context) ([]*genai.ModelInfo, error)
}

// NewGoogleCatalog builds a catalog adapter for the given API key.
func NewGoogleCatalog(apiKey string) *GoogleCatalog {
	return &GoogleCatalog{apiKey: apiKey, client: &defaultGoogleClient{apiKey: apiKey}}
}

func (c *GoogleCatalog) Name() string { return "google" }

func (c *GoogleCatalog) FetchSchemas(ctx context.Context) ([]store.ModelSchema, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("modelcache: google API key is required")
	}

	models, err := c.client.listModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("modelcache: google list models: %w", err)
	}

	out := make([]store.ModelSchema, 0, len(models))
	for _, m := range models {
		schema := store.ModelSchema{
			ID:          m.Name,
			Provider:    c.Name(),
			DisplayName: m.DisplayName,
			Category:    "chat",
			ParamsSchema: map[string]interface{}{
				"topP": map[string]interface{}{"type": "number", "default": 0.95},
			},
		}
		if cost, ok := googlePricing[m.Name]; ok {
			costCopy := cost
			schema.CostPerUnit = &costCopy
		}
		out = append(out, schema)
	}
	return out, nil
}

// defaultGoogleClient wraps the official generative-ai-go client.
type defaultGoogleClient struct {
	apiKey string
}

func (c *defaultGoogleClient) listModels(ctx context.Context) ([]*genai.ModelInfo, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, err
	}
	defer client.Close()

	var models []*genai.ModelInfo
	it := client.ListModels(ctx)
	for {
		m, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		models = append(models, m)
	}
	return models, nil
}

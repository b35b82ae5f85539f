package tools

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"

	"github.com/maikyonn/optimat-core/internal/match"
	"github.com/maikyonn/optimat-core/internal/store"
)

const maxAddressResults = 5

// AddressSearcher resolves a free-text query to candidate addresses.
type AddressSearcher interface {
	SearchAddresses(ctx context.Context, query string, limit int) ([]match.Address, error)
}

// AddressSearchTool geocodes a free-text address query.
type AddressSearchTool struct {
	searcher AddressSearcher
}

func NewAddressSearchTool(searcher AddressSearcher) *AddressSearchTool {
	return &AddressSearchTool{searcher: searcher}
}

func (t *AddressSearchTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        store.ToolAddressSearch,
		Description: "Look up candidate street addresses matching a free-text query, returning each with its coordinates.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"query": {Type: genai.TypeString, Description: "Free-text address or place to look up"},
			},
			Required: []string{"query"},
		},
	}
}

func (t *AddressSearchTool) Run(ctx context.Context, args map[string]interface{}) (map[string]interface{}, interface{}, error) {
	query, err := requireString(args, "query")
	if err != nil {
		return nil, nil, err
	}

	addresses, err := t.searcher.SearchAddresses(ctx, query, maxAddressResults)
	if err != nil {
		return nil, nil, fmt.Errorf("address search failed: %w", err)
	}
	if addresses == nil {
		addresses = []match.Address{}
	}

	payload := struct {
		Query     string          `json:"query"`
		Addresses []match.Address `json:"addresses"`
	}{Query: query, Addresses: addresses}

	output, err := toMap(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode addresses: %w", err)
	}
	return output, payload, nil
}

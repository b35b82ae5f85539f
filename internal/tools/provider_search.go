package tools

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"

	"github.com/maikyonn/optimat-core/internal/match"
	"github.com/maikyonn/optimat-core/internal/store"
)

// ProviderSearchTool wraps the provider matching engine.
type ProviderSearchTool struct {
	engine *match.Engine
}

func NewProviderSearchTool(engine *match.Engine) *ProviderSearchTool {
	return &ProviderSearchTool{engine: engine}
}

func (t *ProviderSearchTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name: store.ToolProviderSearch,
		Description: "Find paratransit providers that can serve a round trip. " +
			"Matches providers whose service zone contains both addresses and whose " +
			"service hours cover both travel times, and includes a public-transit " +
			"alternative when one exists.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"source_address":      {Type: genai.TypeString, Description: "Trip origin as a street address"},
				"destination_address": {Type: genai.TypeString, Description: "Trip destination as a street address"},
				"departure_time":      {Type: genai.TypeString, Description: "Departure time, e.g. \"08:00\" or \"8:00 AM\""},
				"return_time":         {Type: genai.TypeString, Description: "Return time, e.g. \"17:00\" or \"5:00 PM\""},
				"travel_date":         {Type: genai.TypeString, Description: "Travel date as YYYY-MM-DD (optional)"},
				"eligibility_type":    {Type: genai.TypeString, Description: "Required rider eligibility (optional)"},
				"schedule_type":       {Type: genai.TypeString, Description: "Required scheduling model (optional)"},
				"provider_type":       {Type: genai.TypeString, Description: "Required provider type (optional)"},
			},
			Required: []string{"source_address", "destination_address", "departure_time", "return_time"},
		},
	}
}

func (t *ProviderSearchTool) validate(args map[string]interface{}) (match.Query, error) {
	var q match.Query
	var err error

	if q.SourceAddress, err = requireString(args, "source_address"); err != nil {
		return q, err
	}
	if q.DestinationAddress, err = requireString(args, "destination_address"); err != nil {
		return q, err
	}
	if q.DepartureTime, err = requireString(args, "departure_time"); err != nil {
		return q, err
	}
	if q.ReturnTime, err = requireString(args, "return_time"); err != nil {
		return q, err
	}

	// Reject malformed times before execution so they never hit the geocoder.
	if _, err := match.ParseClockTime(q.DepartureTime); err != nil {
		return q, fmt.Errorf("invalid departure_time: %v", err)
	}
	if _, err := match.ParseClockTime(q.ReturnTime); err != nil {
		return q, fmt.Errorf("invalid return_time: %v", err)
	}

	q.TravelDate = stringArg(args, "travel_date")
	q.EligibilityType = stringArg(args, "eligibility_type")
	q.ScheduleType = stringArg(args, "schedule_type")
	q.ProviderType = stringArg(args, "provider_type")
	return q, nil
}

func (t *ProviderSearchTool) Run(ctx context.Context, args map[string]interface{}) (map[string]interface{}, interface{}, error) {
	q, err := t.validate(args)
	if err != nil {
		return nil, nil, err
	}

	result, err := t.engine.FindProviders(ctx, q)
	if err != nil {
		return nil, nil, err
	}

	output, err := toMap(result)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode search result: %w", err)
	}
	return output, result, nil
}

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"github.com/maikyonn/optimat-core/internal/match"
	"github.com/maikyonn/optimat-core/internal/store"
)

// ProviderInfoTool looks providers up by name.
type ProviderInfoTool struct {
	providers match.ProviderSource
}

func NewProviderInfoTool(providers match.ProviderSource) *ProviderInfoTool {
	return &ProviderInfoTool{providers: providers}
}

func (t *ProviderInfoTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        store.ToolProviderInfo,
		Description: "Fetch details about a paratransit provider by name: type, eligibility requirements, scheduling model and service hours.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name": {Type: genai.TypeString, Description: "Provider name, full or partial"},
			},
			Required: []string{"name"},
		},
	}
}

// ProviderDetail mirrors a provider record minus its raw zone geometry.
type ProviderDetail struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	ProviderType    string         `json:"provider_type,omitempty"`
	EligibilityType string         `json:"eligibility_type,omitempty"`
	ScheduleType    string         `json:"schedule_type,omitempty"`
	HasZone         bool           `json:"has_zone"`
	Hours           []match.Window `json:"hours"`
}

func (t *ProviderInfoTool) Run(ctx context.Context, args map[string]interface{}) (map[string]interface{}, interface{}, error) {
	name, err := requireString(args, "name")
	if err != nil {
		return nil, nil, err
	}

	providers, err := t.providers.ListProviders(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load providers: %w", err)
	}

	needle := strings.ToLower(strings.TrimSpace(name))
	details := []ProviderDetail{}
	for _, p := range providers {
		if !strings.Contains(strings.ToLower(p.Name), needle) {
			continue
		}
		detail := ProviderDetail{
			ID:              p.ID,
			Name:            p.Name,
			ProviderType:    p.ProviderType,
			EligibilityType: p.EligibilityType,
			ScheduleType:    p.ScheduleType,
			HasZone:         len(p.ServiceZone) > 0,
			Hours:           []match.Window{},
		}
		if len(p.ServiceHours) > 0 {
			if err := json.Unmarshal(p.ServiceHours, &detail.Hours); err != nil {
				return nil, nil, fmt.Errorf("provider %s has malformed service hours: %w", p.Name, err)
			}
		}
		details = append(details, detail)
	}

	if len(details) == 0 {
		return nil, nil, fmt.Errorf("no provider matching %q", name)
	}

	payload := struct {
		Query     string           `json:"query"`
		Providers []ProviderDetail `json:"providers"`
	}{Query: name, Providers: details}

	output, err := toMap(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode provider details: %w", err)
	}
	return output, payload, nil
}

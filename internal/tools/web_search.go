package tools

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"

	"github.com/maikyonn/optimat-core/internal/store"
)

// WebAnswer is a grounded answer to an open-domain question.
type WebAnswer struct {
	Question string   `json:"question"`
	Answer   string   `json:"answer"`
	Sources  []string `json:"sources,omitempty"`
}

// QuestionAnswerer answers open-domain questions, typically via a
// search-grounded model call.
type QuestionAnswerer interface {
	AnswerWithSearch(ctx context.Context, question string) (*WebAnswer, error)
}

// WebSearchTool answers trip questions the other tools cannot, backed by web
// search. The feature is optional: without an answerer the tool degrades to a
// "not available" failure.
type WebSearchTool struct {
	answerer QuestionAnswerer
}

func NewWebSearchTool(answerer QuestionAnswerer) *WebSearchTool {
	return &WebSearchTool{answerer: answerer}
}

func (t *WebSearchTool) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        store.ToolWebSearch,
		Description: "Answer an open-ended transportation question using web search, for anything the other tools do not cover.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"question": {Type: genai.TypeString, Description: "The question to answer"},
			},
			Required: []string{"question"},
		},
	}
}

func (t *WebSearchTool) Run(ctx context.Context, args map[string]interface{}) (map[string]interface{}, interface{}, error) {
	question, err := requireString(args, "question")
	if err != nil {
		return nil, nil, err
	}

	if t.answerer == nil {
		return nil, nil, fmt.Errorf("web search is not available")
	}

	answer, err := t.answerer.AnswerWithSearch(ctx, question)
	if err != nil {
		return nil, nil, fmt.Errorf("web search is not available: %w", err)
	}
	answer.Question = question

	output, err := toMap(answer)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode answer: %w", err)
	}
	return output, answer, nil
}

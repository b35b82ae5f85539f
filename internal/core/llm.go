package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/maikyonn/optimat-core/internal/config"
	"github.com/maikyonn/optimat-core/internal/tools"
)

const (
	defaultChatModelName   = "gemini-1.5-flash-latest"
	defaultSearchModelName = "gemini-1.5-flash-latest"
	defaultTitleModelName  = "gemini-1.5-flash-latest"

	chatSystemInstruction = "You are OPTIMAT, an assistant that helps riders find paratransit service. " +
		"Use the provided tools to search for providers, look up addresses and provider details, " +
		"and answer open transportation questions. Always resolve trip details (addresses, departure " +
		"and return times) before searching. If no provider can serve a trip, say so plainly and " +
		"mention the public-transit alternative when one was found. Do not make up providers or schedules."

	titleSystemInstruction = "You are a helpful assistant that generates concise titles for chat conversations. " +
		"The title should be 3-5 words maximum. Just return the title itself, nothing else."
)

// ChatModel is the narrow model contract the orchestrator drives. The live
// implementation is Gemini; tests script it.
type ChatModel interface {
	Generate(ctx context.Context, history []*genai.Content, catalog []*genai.Tool) (*genai.Content, error)
	GenerateTitle(ctx context.Context, basis string) (string, error)
}

type LLMService struct {
	client *genai.Client
}

func NewLLMService() *LLMService {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create GenAI client: %v", err)
	}

	return &LLMService{
		client: client,
	}
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		} else {
			log.Println("GenAI client closed.")
		}
	}
}

// Generate sends the transcript plus the tool catalog and returns the model's
// next content, which is either a final text answer or a set of requested
// tool calls.
func (s *LLMService) Generate(ctx context.Context, history []*genai.Content, catalog []*genai.Tool) (*genai.Content, error) {
	if len(history) == 0 {
		return nil, fmt.Errorf("prompt history is empty for chat completion")
	}

	model := s.client.GenerativeModel(defaultChatModelName)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(chatSystemInstruction)},
	}
	model.Tools = catalog

	chatSession := model.StartChat()
	chatSession.History = history[:len(history)-1]

	last := history[len(history)-1]
	resp, err := chatSession.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini chat SendMessage failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		log.Println("Gemini response was empty or had no valid candidates/parts.")
		return &genai.Content{
			Role:  "model",
			Parts: []genai.Part{genai.Text("I'm sorry, I couldn't generate a response at this time. Please try again.")},
		}, nil
	}

	return resp.Candidates[0].Content, nil
}

// AnswerWithSearch answers an open-domain question with Google-search
// grounding and collects the cited source URIs.
func (s *LLMService) AnswerWithSearch(ctx context.Context, question string) (*tools.WebAnswer, error) {
	model := s.client.GenerativeModel(defaultSearchModelName)
	model.Tools = []*genai.Tool{{GoogleSearchRetrieval: &genai.GoogleSearchRetrieval{}}}

	resp, err := model.GenerateContent(ctx, genai.Text(question))
	if err != nil {
		return nil, fmt.Errorf("gemini grounded generation failed: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini returned no grounded answer")
	}

	cand := resp.Candidates[0]
	var answer strings.Builder
	for _, part := range cand.Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			answer.WriteString(string(txt))
		}
	}
	if answer.Len() == 0 {
		return nil, fmt.Errorf("gemini returned an empty grounded answer")
	}

	result := &tools.WebAnswer{Answer: strings.TrimSpace(answer.String())}
	if cand.CitationMetadata != nil {
		for _, src := range cand.CitationMetadata.CitationSources {
			if src.URI != nil && *src.URI != "" {
				result.Sources = append(result.Sources, *src.URI)
			}
		}
	}
	return result, nil
}

func (s *LLMService) GenerateTitle(ctx context.Context, basis string) (string, error) {
	model := s.client.GenerativeModel(defaultTitleModelName)

	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(titleSystemInstruction)},
	}

	temp := float32(0.3)
	maxTokens := int32(20)

	model.GenerationConfig = genai.GenerationConfig{
		MaxOutputTokens: &maxTokens,
		Temperature:     &temp,
	}

	prompt := fmt.Sprintf("Generate a very concise title (3-5 words maximum) for a conversation that starts with or is about: \"%s\".", basis)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini title generation request failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "Chat", fmt.Errorf("LLM did not generate a title (empty response)")
	}

	var title strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			title.WriteString(string(txt))
		}
	}

	if title.Len() == 0 {
		return "Chat", fmt.Errorf("LLM generated an empty title string")
	}

	return strings.Trim(title.String(), "\"'\n\r\t ."), nil
}

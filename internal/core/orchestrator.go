package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"

	"github.com/maikyonn/optimat-core/internal/store"
	"github.com/maikyonn/optimat-core/internal/tools"
	"github.com/maikyonn/optimat-core/internal/utils"
)

const (
	modelRetryAttempts = 3
	modelRetryBase     = time.Second

	fallbackAnswer = "I'm sorry, I wasn't able to finish working on that request. Please try asking again."
	emptyAnswer    = "I'm sorry, I couldn't come up with a response. Please try rephrasing your question."
)

// ErrToolLoopExceeded reports that a turn used all of its model/tool rounds
// without the model producing a final answer.
var ErrToolLoopExceeded = errors.New("tool loop round bound exceeded")

// ConversationStore is the slice of persistence the orchestrator needs.
type ConversationStore interface {
	GetConversationByID(ctx context.Context, convID string, userID int64) (*store.Conversation, error)
	UpdateConversationTitle(ctx context.Context, convID string, userID int64, title string) error
	GetMessagesByConversationID(ctx context.Context, convID string) ([]store.Message, error)
	CreateMessage(ctx context.Context, msg *store.Message) error
	SaveToolCall(ctx context.Context, rec *store.ToolCallRecord) error
}

// TurnResult is the outcome of one completed turn: the assistant message plus
// one attachment per tool executed successfully during the turn.
type TurnResult struct {
	Message     store.Message      `json:"message"`
	Attachments []tools.Attachment `json:"attachments"`
}

// Orchestrator drives one chat turn at a time: persist the user message, loop
// between model invocations and tool dispatch within a bounded number of
// rounds, then persist and return the assistant's answer.
type Orchestrator struct {
	store      ConversationStore
	model      ChatModel
	dispatcher *tools.Dispatcher
	maxRounds  int

	locks sync.Map // conversation id -> *sync.Mutex
}

func NewOrchestrator(st ConversationStore, model ChatModel, dispatcher *tools.Dispatcher, maxRounds int) *Orchestrator {
	if maxRounds <= 0 {
		maxRounds = 5
	}
	return &Orchestrator{
		store:      st,
		model:      model,
		dispatcher: dispatcher,
		maxRounds:  maxRounds,
	}
}

// lockFor returns the mutex serializing turns for one conversation. Turns on
// different conversations run fully in parallel; a turn on the same
// conversation must not start until the prior turn's persistence finished.
func (o *Orchestrator) lockFor(convID string) *sync.Mutex {
	m, _ := o.locks.LoadOrStore(convID, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// RunTurn executes one full turn for the conversation. Exactly one user
// message is inserted, zero or more tool-call records, and exactly one
// assistant message once the turn reaches a final answer; a turn that fails
// before then returns an error and persists no assistant message.
func (o *Orchestrator) RunTurn(ctx context.Context, convID string, userID int64, userText string) (*TurnResult, error) {
	lock := o.lockFor(convID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := o.store.GetConversationByID(ctx, convID, userID)
	if err != nil {
		return nil, err
	}

	userMsg := store.Message{
		ConversationID: convID,
		Role:           "user",
		Content:        userText,
	}
	if err := o.store.CreateMessage(ctx, &userMsg); err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	messages, err := o.store.GetMessagesByConversationID(ctx, convID)
	if err != nil {
		return nil, fmt.Errorf("failed to load message history: %w", err)
	}
	history := historyToContents(messages)

	catalog := []*genai.Tool{{FunctionDeclarations: o.dispatcher.Declarations()}}
	var attachments []tools.Attachment

	for round := 0; ; round++ {
		if round >= o.maxRounds {
			log.Printf("chat %s: %v after %d rounds", convID, ErrToolLoopExceeded, round)
			return o.finishTurn(ctx, conv, userText, fallbackAnswer, nil)
		}

		var modelContent *genai.Content
		err := utils.Retry(ctx, modelRetryAttempts, modelRetryBase, func() error {
			var genErr error
			modelContent, genErr = o.model.Generate(ctx, history, catalog)
			return genErr
		})
		if err != nil {
			// Model-call exhaustion is fatal to the turn.
			return nil, fmt.Errorf("model invocation failed: %w", err)
		}

		calls, text := splitModelParts(modelContent)
		if len(calls) == 0 {
			if strings.TrimSpace(text) == "" {
				text = emptyAnswer
			}
			return o.finishTurn(ctx, conv, userText, text, attachments)
		}

		outcomes := o.dispatchRound(ctx, calls)

		responseParts := make([]genai.Part, 0, len(outcomes))
		for _, out := range outcomes {
			if out.OK {
				rec := store.ToolCallRecord{
					ConversationID: convID,
					Tool:           out.Tool,
					Input:          out.RecordInput,
					Output:         out.RecordOutput,
				}
				if err := o.store.SaveToolCall(ctx, &rec); err != nil {
					return nil, fmt.Errorf("failed to log %s call: %w", out.Tool, err)
				}
				attachments = append(attachments, *out.Attachment)
			}
			responseParts = append(responseParts, genai.FunctionResponse{
				Name:     out.Tool,
				Response: out.Response,
			})
		}

		history = append(history, modelContent)
		history = append(history, &genai.Content{Role: "function", Parts: responseParts})
	}
}

// dispatchRound executes the calls of one model round concurrently and
// reassembles the outcomes in the order the model requested them.
func (o *Orchestrator) dispatchRound(ctx context.Context, calls []genai.FunctionCall) []tools.Outcome {
	outcomes := make([]tools.Outcome, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call genai.FunctionCall) {
			defer wg.Done()
			outcomes[i] = o.dispatcher.Dispatch(ctx, call.Name, call.Args)
		}(i, call)
	}
	wg.Wait()
	return outcomes
}

// finishTurn persists the assistant message and hands back the turn result.
// The answer is never returned to the caller unless it was persisted.
func (o *Orchestrator) finishTurn(ctx context.Context, conv *store.Conversation, userText, answer string, attachments []tools.Attachment) (*TurnResult, error) {
	assistantMsg := store.Message{
		ConversationID: conv.ID,
		Role:           "assistant",
		Content:        answer,
	}
	if err := o.store.CreateMessage(ctx, &assistantMsg); err != nil {
		return nil, fmt.Errorf("failed to store assistant message: %w", err)
	}

	if conv.Title == nil || *conv.Title == "" {
		go o.generateAndSaveTitle(conv.ID, conv.UserID, userText)
	}

	if attachments == nil {
		attachments = []tools.Attachment{}
	}
	return &TurnResult{Message: assistantMsg, Attachments: attachments}, nil
}

func (o *Orchestrator) generateAndSaveTitle(convID string, userID int64, basisContent string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	title, err := o.model.GenerateTitle(ctx, basisContent)
	if err != nil {
		log.Printf("Failed to generate title for chat %s: %v", convID, err)
		return
	}
	title = strings.Trim(title, "\"'\n\r\t .")

	if err := o.store.UpdateConversationTitle(ctx, convID, userID, title); err != nil {
		log.Printf("Failed to save generated title '%s' for chat %s: %v", title, convID, err)
	}
}

// historyToContents converts the stored transcript to model contents. System
// rows are excluded; the system prompt travels as the model's system
// instruction instead.
func historyToContents(messages []store.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		role := ""
		switch msg.Role {
		case "user":
			role = "user"
		case "assistant":
			role = "model"
		default:
			continue
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(msg.Content)},
		})
	}
	return contents
}

// splitModelParts separates a model response into requested tool calls (in
// request order) and its text.
func splitModelParts(content *genai.Content) ([]genai.FunctionCall, string) {
	if content == nil {
		return nil, ""
	}
	var calls []genai.FunctionCall
	var text strings.Builder
	for _, part := range content.Parts {
		switch v := part.(type) {
		case genai.FunctionCall:
			calls = append(calls, v)
		case genai.Text:
			text.WriteString(string(v))
		}
	}
	return calls, text.String()
}

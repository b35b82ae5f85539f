package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/maikyonn/optimat-core/internal/auth"
	"github.com/maikyonn/optimat-core/internal/core"
	"github.com/maikyonn/optimat-core/internal/replay"
	"github.com/maikyonn/optimat-core/internal/store"
	"github.com/maikyonn/optimat-core/internal/tools"
	"github.com/maikyonn/optimat-core/pkg/httputil"
)

type APIHandler struct {
	store        *store.SQLiteStore
	orchestrator *core.Orchestrator
	replay       *replay.Service
}

func NewAPIHandler(st *store.SQLiteStore, orch *core.Orchestrator, rp *replay.Service) *APIHandler {
	return &APIHandler{store: st, orchestrator: orch, replay: rp}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.RespondError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		externalUserID, err := auth.ValidateJWT(tokenString)
		if err != nil {
			httputil.RespondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		user, err := h.store.GetUserByExternalID(r.Context(), externalUserID)
		if err != nil {
			log.Printf("Error in JWTAuthMiddleware for user %s: %v", externalUserID, err)
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to process user identity")
			return
		}

		if user == nil {
			httputil.RespondError(w, http.StatusUnauthorized, "User not found")
			return
		}

		ctx := context.WithValue(r.Context(), "userID", user.ID)
		ctx = context.WithValue(ctx, "externalUserID", user.ExternalUserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type SignupRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.UserID == "" || req.Password == "" {
		httputil.RespondError(w, http.StatusBadRequest, "User ID and password are required")
		return
	}

	existing, err := h.store.GetUserByExternalID(r.Context(), req.UserID)
	if err != nil {
		log.Printf("Error checking user %s: %v", req.UserID, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}
	if existing != nil {
		httputil.RespondError(w, http.StatusConflict, "User already exists")
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for user %s: %v", req.UserID, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to process password")
		return
	}

	user, err := h.store.CreateUser(r.Context(), req.UserID, hashedPassword)
	if err != nil {
		log.Printf("Error creating user %s: %v", req.UserID, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	httputil.RespondJSON(w, http.StatusCreated, user)
}

type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.UserID == "" || req.Password == "" {
		httputil.RespondError(w, http.StatusBadRequest, "User ID and password are required")
		return
	}

	user, err := h.store.GetUserByExternalID(r.Context(), req.UserID)
	if err != nil {
		log.Printf("Error getting user %s: %v", req.UserID, err)
		httputil.RespondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		httputil.RespondError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := auth.GenerateJWT(req.UserID)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", req.UserID, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]string{"token": token})
}

type CreateConversationRequest struct {
	FirstMessage *string `json:"first_message,omitempty"`
}

type CreateConversationResponse struct {
	*store.Conversation
	Messages    []store.Message    `json:"messages,omitempty"`
	Attachments []tools.Attachment `json:"attachments,omitempty"`
}

func (h *APIHandler) CreateConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	var req CreateConversationRequest
	if r.Body != http.NoBody {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	conv, err := h.store.CreateConversation(r.Context(), userID, nil)
	if err != nil {
		log.Printf("Error creating conversation for user %d: %v", userID, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to create conversation")
		return
	}

	resp := CreateConversationResponse{Conversation: conv}
	if req.FirstMessage != nil && strings.TrimSpace(*req.FirstMessage) != "" {
		result, err := h.orchestrator.RunTurn(r.Context(), conv.ID, userID, *req.FirstMessage)
		if err != nil {
			log.Printf("Error running first turn for conversation %s: %v", conv.ID, err)
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to process first message")
			return
		}
		messages, err := h.store.GetMessagesByConversationID(r.Context(), conv.ID)
		if err != nil {
			log.Printf("Error loading messages for conversation %s: %v", conv.ID, err)
			httputil.RespondError(w, http.StatusInternalServerError, "Failed to load conversation")
			return
		}
		resp.Messages = messages
		resp.Attachments = result.Attachments
	}

	httputil.RespondJSON(w, http.StatusCreated, resp)
}

func (h *APIHandler) ListConversationsHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)

	conversations, err := h.store.GetConversationsByUserID(r.Context(), userID)
	if err != nil {
		log.Printf("Error listing conversations for user %d: %v", userID, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to list conversations")
		return
	}
	httputil.RespondJSON(w, http.StatusOK, conversations)
}

type ConversationDetailsResponse struct {
	*store.Conversation
	Messages []store.Message `json:"messages"`
}

func (h *APIHandler) GetConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	convID := chi.URLParam(r, "conversationID")

	conv, err := h.store.GetConversationByID(r.Context(), convID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		log.Printf("Error getting conversation %s for user %d: %v", convID, userID, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to get conversation")
		return
	}

	messages, err := h.store.GetMessagesByConversationID(r.Context(), convID)
	if err != nil {
		log.Printf("Error loading messages for conversation %s: %v", convID, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to load messages")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, ConversationDetailsResponse{Conversation: conv, Messages: messages})
}

func (h *APIHandler) DeleteConversationHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	convID := chi.URLParam(r, "conversationID")

	if err := h.store.DeleteConversation(r.Context(), convID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		log.Printf("Error deleting conversation %s for user %d: %v", convID, userID, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type PostMessageRequest struct {
	Message string `json:"message"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	convID := chi.URLParam(r, "conversationID")

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		httputil.RespondError(w, http.StatusBadRequest, "Message cannot be empty")
		return
	}

	result, err := h.orchestrator.RunTurn(r.Context(), convID, userID, req.Message)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		log.Printf("Error posting message for user %d, conversation %s: %v", userID, convID, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to process message")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, result)
}

func (h *APIHandler) RegenerateReplayHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	convID := chi.URLParam(r, "conversationID")

	if _, err := h.store.GetConversationByID(r.Context(), convID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		log.Printf("Error getting conversation %s for user %d: %v", convID, userID, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to get conversation")
		return
	}

	states, err := h.replay.Regenerate(r.Context(), convID)
	if err != nil {
		log.Printf("Error regenerating replay for conversation %s: %v", convID, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to regenerate replay")
		return
	}

	httputil.RespondJSON(w, http.StatusOK, map[string]interface{}{"count": len(states), "states": states})
}

func (h *APIHandler) GetReplayHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(int64)
	convID := chi.URLParam(r, "conversationID")

	if _, err := h.store.GetConversationByID(r.Context(), convID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httputil.RespondError(w, http.StatusNotFound, "Conversation not found")
			return
		}
		log.Printf("Error getting conversation %s for user %d: %v", convID, userID, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to get conversation")
		return
	}

	states, err := h.replay.States(r.Context(), convID)
	if err != nil {
		log.Printf("Error loading replay for conversation %s: %v", convID, err)
		httputil.RespondError(w, http.StatusInternalServerError, "Failed to load replay")
		return
	}
	if states == nil {
		states = []store.ReplayState{}
	}

	httputil.RespondJSON(w, http.StatusOK, states)
}

package handler

import (
	"net/http"
	"strconv"

	"pingup/internal/app/chat"
	"pingup/internal/pkg/auth/jwt"
	"pingup/internal/pkg/errs"
	"pingup/internal/pkg/req"
	"pingup/internal/pkg/resp"
)

// ConversationInput is the body of /api/message/get.
type ConversationInput struct {
	To string `json:"to_user_id"`
}

// HandleSendMessage persists a message and pushes it to the recipient's live session.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input chat.SendInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		view, err := deps.Chat.SendMessage(r.Context(), jwt.UserID(r), input)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"message": view})
	}
}

// HandleGetConversation returns the conversation with to_user_id and marks its messages to the caller as seen.
func HandleGetConversation(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input ConversationInput
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		messages, err := deps.Chat.GetConversation(r.Context(), jwt.UserID(r), input.To)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"messages": messages})
	}
}

// HandleRecentMessages returns the caller's latest received messages. ?limit= caps the count.
func HandleRecentMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
				return
			}
			limit = n
		}

		messages, err := deps.Chat.Inbox(r.Context(), jwt.UserID(r), limit)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"messages": messages})
	}
}

package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"parkfee-bot/internal/domain"
	"parkfee-bot/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

const maxBodyBytes = 16 << 10

// ConversationUseCase answers one inbound chat event.
type ConversationUseCase interface {
	Handle(ctx context.Context, ev domain.Event) (domain.Reply, error)
}

type Handler struct {
	uc     ConversationUseCase
	logger *zap.Logger
}

func NewHandler(uc ConversationUseCase, logger *zap.Logger) (*Handler, error) {
	if uc == nil {
		return nil, errors.New("handler: use case must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{uc: uc, logger: logger}, nil
}

type webhookRequest struct {
	UserID string `json:"userId"`
	Type   string `json:"type"`
	Text   string `json:"text"`
	Choice string `json:"choice"`
}

type replyBody struct {
	Type    string          `json:"type"`
	Text    string          `json:"text"`
	Choices []domain.Choice `json:"choices,omitempty"`
}

type webhookResponse struct {
	Reply replyBody `json:"reply"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handle is the API Gateway proxy entrypoint. Failures are reported in the
// response; the returned error is always nil.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := headerValue(req.Headers, correlationHeader)
	if corrID == "" {
		corrID = uuid.NewString()
	}
	log := h.logger.With(zap.String("correlation_id", corrID))

	ev, reason := decodeEvent(req)
	if reason != "" {
		log.Info("rejected webhook request", zap.String("reason", reason))
		return errorJSON(corrID, http.StatusBadRequest, usecase.ErrorInvalidInput), nil
	}

	reply, err := h.uc.Handle(ctx, ev)
	if err != nil {
		code := usecase.CodeOf(err)
		status := statusFor(code)
		if status >= http.StatusInternalServerError {
			log.Error("conversation failed", zap.String("user", ev.UserID), zap.Error(err))
		} else {
			log.Info("conversation rejected event", zap.String("user", ev.UserID), zap.Error(err))
		}
		return errorJSON(corrID, status, code), nil
	}

	return jsonResponse(corrID, http.StatusOK, webhookResponse{Reply: replyBody{
		Type:    string(reply.Kind),
		Text:    reply.Text,
		Choices: reply.Choices,
	}}), nil
}

func decodeEvent(req events.APIGatewayProxyRequest) (domain.Event, string) {
	body := req.Body
	if req.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return domain.Event{}, "invalid_base64"
		}
		body = string(raw)
	}
	if len(body) > maxBodyBytes {
		return domain.Event{}, "body_too_large"
	}

	var in webhookRequest
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return domain.Event{}, "invalid_json"
	}
	if strings.TrimSpace(in.UserID) == "" {
		return domain.Event{}, "missing_user_id"
	}

	ev := domain.Event{UserID: strings.TrimSpace(in.UserID)}
	switch domain.EventKind(in.Type) {
	case domain.EventText:
		ev.Kind = domain.EventText
		ev.Text = in.Text
	case domain.EventSelection:
		ev.Kind = domain.EventSelection
		ev.Choice = in.Choice
	default:
		return domain.Event{}, "unknown_event_type"
	}
	return ev, ""
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// headerValue looks a header up case-insensitively; API Gateway does not
// normalize header names.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func errorJSON(corrID string, status int, code usecase.ErrorCode) events.APIGatewayProxyResponse {
	return jsonResponse(corrID, status, errorResponse{Error: string(code)})
}

func jsonResponse(corrID string, status int, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(body),
	}
}

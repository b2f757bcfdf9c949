package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"parkfee-bot/internal/domain"
)

// ChoiceCancel is the selection code that abandons a pending query.
const ChoiceCancel = "CANCEL"

const (
	textPromptPlate  = "請輸入車牌號碼（例如 ABC-1234）"
	textInvalidPlate = "車牌格式錯誤，只能包含英文字母、數字、中文字與「-」，請重新輸入"
	textChooseType   = "車牌 %s，請選擇車種"
	textCancelled    = "已取消查詢。"
	textGuidance     = "輸入「%s」開始查詢停車費。"
	labelCancel      = "取消"
)

// DefaultStartKeywords start a dialogue when no keywords are configured.
var DefaultStartKeywords = []string{"查費", "check"}

// SessionStore runs a transition atomically for one user.
type SessionStore interface {
	Update(ctx context.Context, userID string, fn func(*domain.Session) error) error
}

// Querier runs the multi-city fee query.
type Querier interface {
	Query(ctx context.Context, plate domain.Plate, vehicle domain.VehicleType, cityIDs []string) domain.Report
}

type ConversationOptions struct {
	StartKeywords []string
	Labels        VehicleLabels
	// Cities is the queried city set; empty defers to the querier's default.
	Cities []string
}

// ConversationService drives the per-user dialogue.
type ConversationService struct {
	store    SessionStore
	querier  Querier
	logger   *zap.Logger
	keywords []string
	labels   VehicleLabels
	cities   []string
}

func NewConversationService(store SessionStore, querier Querier, logger *zap.Logger, opts ConversationOptions) (*ConversationService, error) {
	if store == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if querier == nil {
		return nil, errors.New("usecase: querier must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	keywords := make([]string, 0, len(opts.StartKeywords))
	for _, k := range opts.StartKeywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	if len(keywords) == 0 {
		keywords = append(keywords, DefaultStartKeywords...)
	}
	return &ConversationService{
		store:    store,
		querier:  querier,
		logger:   logger,
		keywords: keywords,
		labels:   opts.Labels,
		cities:   append([]string(nil), opts.Cities...),
	}, nil
}

// Handle applies one inbound event to the user's session and returns the
// reply to send. Only session storage failures produce an error.
func (s *ConversationService) Handle(ctx context.Context, ev domain.Event) (domain.Reply, error) {
	userID := strings.TrimSpace(ev.UserID)
	if userID == "" {
		return domain.Reply{}, newError(ErrorInvalidInput, "missing_user_id", nil)
	}

	var (
		eff    effect
		report domain.Report
		from   domain.Stage
		to     domain.Stage
	)
	err := s.store.Update(ctx, userID, func(sess *domain.Session) error {
		from = sess.Stage
		next, e := transition(*sess, ev, s.isStartKeyword)
		eff = e
		if eff.kind == effectQuery {
			report = s.querier.Query(ctx, eff.plate, eff.vehicle, s.cities)
		}
		*sess = next
		to = next.Stage
		return nil
	})
	if err != nil {
		if eff.kind == effectQuery {
			// The query already ran; the user still gets the report.
			s.logger.Error("session cleanup after query failed", zap.String("user", userID), zap.Error(err))
			return domain.TextReply(report.Text()), nil
		}
		return domain.Reply{}, newError(ErrorInternal, "session_store_error", err)
	}

	s.logger.Debug("conversation transition",
		zap.String("user", userID),
		zap.String("event", string(ev.Kind)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	return s.render(eff, report), nil
}

func (s *ConversationService) render(eff effect, report domain.Report) domain.Reply {
	switch eff.kind {
	case effectPromptPlate:
		return domain.TextReply(textPromptPlate)
	case effectInvalidPlate:
		return domain.TextReply(textInvalidPlate)
	case effectChooseType:
		return domain.ChoicePrompt(fmt.Sprintf(textChooseType, eff.plate), s.typeChoices())
	case effectCancelled:
		return domain.TextReply(textCancelled)
	case effectQuery:
		return domain.TextReply(report.Text())
	default:
		return domain.TextReply(fmt.Sprintf(textGuidance, s.keywords[0]))
	}
}

func (s *ConversationService) typeChoices() []domain.Choice {
	return []domain.Choice{
		{Label: s.labels.Label(domain.VehicleCar), Code: domain.VehicleCar.Code()},
		{Label: s.labels.Label(domain.VehicleMotorcycle), Code: domain.VehicleMotorcycle.Code()},
		{Label: labelCancel, Code: ChoiceCancel},
	}
}

func (s *ConversationService) isStartKeyword(text string) bool {
	text = strings.TrimSpace(text)
	for _, k := range s.keywords {
		if strings.EqualFold(text, k) {
			return true
		}
	}
	return false
}

type effectKind int

const (
	effectGuidance effectKind = iota
	effectPromptPlate
	effectInvalidPlate
	effectChooseType
	effectCancelled
	effectQuery
)

type effect struct {
	kind    effectKind
	plate   domain.Plate
	vehicle domain.VehicleType
}

// transition is total over (stage, event): every combination maps to a next
// session and an effect. Unexpected input leaves the session untouched.
func transition(sess domain.Session, ev domain.Event, isStartKeyword func(string) bool) (domain.Session, effect) {
	idle := domain.Session{UserID: sess.UserID, Stage: domain.StageIdle}

	if ev.Kind == domain.EventText && isStartKeyword(ev.Text) {
		return domain.Session{UserID: sess.UserID, Stage: domain.StageAwaitingPlate}, effect{kind: effectPromptPlate}
	}

	switch sess.Stage {
	case domain.StageAwaitingPlate:
		if ev.Kind != domain.EventText {
			return sess, effect{kind: effectGuidance}
		}
		plate, err := domain.ValidatePlate(ev.Text)
		if err != nil {
			return sess, effect{kind: effectInvalidPlate}
		}
		next := sess
		next.Stage = domain.StageAwaitingType
		next.Plate = plate
		return next, effect{kind: effectChooseType, plate: plate}

	case domain.StageAwaitingType:
		if ev.Kind != domain.EventSelection {
			return sess, effect{kind: effectGuidance}
		}
		choice := strings.TrimSpace(ev.Choice)
		if choice == ChoiceCancel {
			return idle, effect{kind: effectCancelled}
		}
		vehicle, ok := domain.ParseVehicleCode(choice)
		if !ok {
			return sess, effect{kind: effectGuidance}
		}
		return idle, effect{kind: effectQuery, plate: sess.Plate, vehicle: vehicle}

	default:
		return sess, effect{kind: effectGuidance}
	}
}

package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"flashdeck-backend/internal/events"
	"flashdeck-backend/internal/middleware"
	"flashdeck-backend/internal/models"
	"flashdeck-backend/internal/repository"
	"flashdeck-backend/internal/sessionstore"
	"flashdeck-backend/internal/srs"
	"flashdeck-backend/internal/study"
)

type sessionCache interface {
	Save(ctx context.Context, s study.Session) error
	Get(ctx context.Context, id, userID uuid.UUID) (study.Session, error)
	Delete(ctx context.Context, id, userID uuid.UUID) error
	Lock(ctx context.Context, id uuid.UUID) (func(), error)
}

type deckLookup interface {
	GetDeckByID(ctx context.Context, id uuid.UUID) (*models.FlashcardDeck, error)
}

type historyRepo interface {
	ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.StudySession, error)
}

type eventPublisher interface {
	Publish(ctx context.Context, userID uuid.UUID, msg models.WSMessage) error
}

type StudySessionHandler struct {
	controller *study.Controller
	sessions   sessionCache
	decks      deckLookup
	history    historyRepo
	events     eventPublisher
}

func NewStudySessionHandler(controller *study.Controller, sessions sessionCache, decks deckLookup, history historyRepo, publisher eventPublisher) *StudySessionHandler {
	return &StudySessionHandler{
		controller: controller,
		sessions:   sessions,
		decks:      decks,
		history:    history,
		events:     publisher,
	}
}

type cardView struct {
	ID    uuid.UUID `json:"id"`
	Front string    `json:"front"`
	Back  string    `json:"back,omitempty"`
}

// sessionView is what the client renders. The back of the card is only
// included once it has been flipped.
type sessionView struct {
	SessionID     uuid.UUID   `json:"session_id"`
	DeckID        uuid.UUID   `json:"deck_id"`
	State         study.State `json:"state"`
	Position      int         `json:"position"`
	Total         int         `json:"total"`
	Remaining     int         `json:"remaining"`
	Completed     int         `json:"completed"`
	Card          *cardView   `json:"card,omitempty"`
	CurrentStreak int         `json:"current_streak"`
	BestStreak    int         `json:"best_streak"`
	LastResult    *srs.Result `json:"last_result,omitempty"`
	LastError     string      `json:"last_error,omitempty"`
}

func newSessionView(s study.Session) sessionView {
	v := sessionView{
		SessionID:     s.ID,
		DeckID:        s.DeckID,
		State:         s.State,
		Total:         len(s.Queue),
		Remaining:     s.Remaining(),
		Completed:     s.Completed,
		CurrentStreak: s.CurrentStreak,
		BestStreak:    s.BestStreak,
		LastResult:    s.LastResult,
		LastError:     s.LastError,
	}

	if card, ok := s.Current(); ok {
		v.Position = s.Index + 1
		v.Card = &cardView{ID: card.ID, Front: card.Front}
		if s.State == study.StateFlipped {
			v.Card.Back = card.Back
		}
	}
	return v
}

func (h *StudySessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	deckID, err := uuid.Parse(chi.URLParam(r, "deckID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid deck ID", r))
		return
	}

	userID := middleware.GetUserID(r.Context())

	deck, err := h.decks.GetDeckByID(r.Context(), deckID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Deck not found", r))
		} else {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch deck", r))
		}
		return
	}
	if deck.UserID != userID {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return
	}

	session, err := h.controller.Start(r.Context(), userID, deckID)
	if err != nil {
		log.Printf("start study session on deck %s: %v", deckID, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to start study session", r))
		return
	}

	// Nothing to resume when no card is due.
	if session.State == study.StateNoCardsDue {
		writeJSON(w, http.StatusOK, newSessionView(session))
		return
	}

	if err := h.sessions.Save(r.Context(), session); err != nil {
		log.Printf("save study session %s: %v", session.ID, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to start study session", r))
		return
	}

	writeJSON(w, http.StatusCreated, newSessionView(session))
}

// loadSession resolves the {id} URL param to a session of the caller. It
// writes the error response itself and returns false when that fails.
func (h *StudySessionHandler) loadSession(w http.ResponseWriter, r *http.Request) (study.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return study.Session{}, false
	}

	session, err := h.sessions.Get(r.Context(), id, middleware.GetUserID(r.Context()))
	switch {
	case err == nil:
		return session, true
	case errors.Is(err, sessionstore.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Study session not found or expired", r))
	case errors.Is(err, sessionstore.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
	default:
		log.Printf("load study session %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load study session", r))
	}
	return study.Session{}, false
}

// lockSession claims the {id} session so that only one request at a time can
// move it forward. Callers must run the returned unlock when done.
func (h *StudySessionHandler) lockSession(w http.ResponseWriter, r *http.Request) (func(), bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session ID", r))
		return nil, false
	}

	unlock, err := h.sessions.Lock(r.Context(), id)
	switch {
	case err == nil:
		return unlock, true
	case errors.Is(err, sessionstore.ErrLocked):
		writeJSON(w, http.StatusConflict, errorResp("SESSION_BUSY", "Another request is updating this study session", r))
	default:
		log.Printf("lock study session %s: %v", id, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load study session", r))
	}
	return nil, false
}

func (h *StudySessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSessionView(session))
}

func (h *StudySessionHandler) Flip(w http.ResponseWriter, r *http.Request) {
	unlock, ok := h.lockSession(w, r)
	if !ok {
		return
	}
	defer unlock()

	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	next, err := h.controller.Flip(session)
	if err != nil {
		writeStudyError(w, r, err)
		return
	}

	if err := h.sessions.Save(r.Context(), next); err != nil {
		log.Printf("save study session %s: %v", next.ID, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to save study session", r))
		return
	}

	writeJSON(w, http.StatusOK, newSessionView(next))
}

func (h *StudySessionHandler) Rate(w http.ResponseWriter, r *http.Request) {
	var req models.RateCardRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	unlock, ok := h.lockSession(w, r)
	if !ok {
		return
	}
	defer unlock()

	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	next, err := h.controller.Rate(r.Context(), session, srs.Rating(req.Difficulty))
	if err != nil {
		if errors.Is(err, study.ErrPersistence) {
			log.Printf("rate card in study session %s: %v", session.ID, err)
			// Keep the failed state so a reload offers the retry.
			if saveErr := h.sessions.Save(r.Context(), next); saveErr != nil {
				log.Printf("save study session %s: %v", next.ID, saveErr)
			}
		}
		writeStudyError(w, r, err)
		return
	}

	if err := h.sessions.Save(r.Context(), next); err != nil {
		log.Printf("save study session %s: %v", next.ID, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Rating saved but session state was lost", r))
		return
	}

	h.publishRating(r.Context(), session, next)

	writeJSON(w, http.StatusOK, newSessionView(next))
}

func (h *StudySessionHandler) publishRating(ctx context.Context, before, after study.Session) {
	reviewed := after.Queue[before.Index]

	reviewedMsg := models.WSMessage{
		Type: events.TypeCardReviewed,
		Payload: events.CardReviewed{
			SessionID:    after.ID,
			DeckID:       after.DeckID,
			FlashcardID:  reviewed.ID,
			Difficulty:   after.DifficultyScores[len(after.DifficultyScores)-1],
			EaseFactor:   after.LastResult.EaseFactor,
			IntervalDays: after.LastResult.IntervalDays,
			NextReview:   after.LastResult.NextReview,
			Remaining:    after.Remaining(),
		},
	}
	if err := h.events.Publish(ctx, after.UserID, reviewedMsg); err != nil {
		log.Printf("publish card_reviewed: %v", err)
	}

	if after.State != study.StateComplete {
		return
	}

	summary := h.controller.Summarize(after)
	completeMsg := models.WSMessage{
		Type: events.TypeSessionComplete,
		Payload: events.SessionComplete{
			SessionID:         after.ID,
			DeckID:            after.DeckID,
			CardsStudied:      summary.CardsStudied,
			AverageDifficulty: summary.AverageDifficulty,
			BestStreak:        summary.BestStreak,
			SuggestedReturn:   summary.SuggestedReturn,
		},
	}
	if err := h.events.Publish(ctx, after.UserID, completeMsg); err != nil {
		log.Printf("publish session_complete: %v", err)
	}
}

func (h *StudySessionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.controller.Summarize(session))
}

// Abandon drops the in-flight session. Ratings already given stay recorded
// and unrated cards keep their schedule.
func (h *StudySessionHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	unlock, ok := h.lockSession(w, r)
	if !ok {
		return
	}
	defer unlock()

	session, ok := h.loadSession(w, r)
	if !ok {
		return
	}

	if err := h.sessions.Delete(r.Context(), session.ID, session.UserID); err != nil && !errors.Is(err, sessionstore.ErrNotFound) {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to end study session", r))
		return
	}

	writeJSON(w, http.StatusOK, h.controller.Summarize(session))
}

func (h *StudySessionHandler) History(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	limit := 30
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 365 {
			writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "limit must be between 1 and 365", r))
			return
		}
		limit = n
	}

	sessions, err := h.history.ListByUser(r.Context(), userID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch study history", r))
		return
	}

	totalCards, totalSeconds := 0, 0
	for _, s := range sessions {
		totalCards += s.CardsStudied
		totalSeconds += s.DurationSeconds
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions":       sessions,
		"total_cards":    totalCards,
		"total_duration": (time.Duration(totalSeconds) * time.Second).String(),
	})
}

func writeStudyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, study.ErrPersistence):
		writeJSON(w, http.StatusServiceUnavailable, errorResp("PERSISTENCE_ERROR", "Your rating could not be saved. Please try again.", r))
	case errors.Is(err, study.ErrInvalidRating):
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", err.Error(), r))
	case errors.Is(err, study.ErrInvalidTransition), errors.Is(err, study.ErrNoCurrentCard):
		writeJSON(w, http.StatusConflict, errorResp("INVALID_STATE", err.Error(), r))
	default:
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Something went wrong", r))
	}
}

package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"flashdeck-backend/internal/middleware"
	"flashdeck-backend/internal/models"
	"flashdeck-backend/internal/repository"
)

type deckRepo interface {
	CreateDeck(ctx context.Context, d *models.FlashcardDeck, cards []models.Flashcard) error
	GetDeckByID(ctx context.Context, id uuid.UUID) (*models.FlashcardDeck, error)
	ListDecksByUser(ctx context.Context, userID uuid.UUID) ([]*models.FlashcardDeck, error)
	DeleteDeck(ctx context.Context, id, userID uuid.UUID) error
	ToggleFavorite(ctx context.Context, id, userID uuid.UUID) (bool, error)
	CreateCards(ctx context.Context, deckID uuid.UUID, cards []models.Flashcard) error
	GetCardsByDeck(ctx context.Context, deckID uuid.UUID) ([]models.Flashcard, error)
	GetDeckStats(ctx context.Context, deckID uuid.UUID, now time.Time) (*models.DeckStats, error)
}

type reviewLister interface {
	ListByFlashcard(ctx context.Context, flashcardID, userID uuid.UUID, limit int) ([]models.Review, error)
}

type FlashcardHandler struct {
	flashRepo  deckRepo
	reviewRepo reviewLister
	now        func() time.Time
}

func NewFlashcardHandler(flashRepo deckRepo, reviewRepo reviewLister) *FlashcardHandler {
	return &FlashcardHandler{flashRepo: flashRepo, reviewRepo: reviewRepo, now: time.Now}
}

func toCards(reqs []models.CreateCardRequest) []models.Flashcard {
	cards := make([]models.Flashcard, 0, len(reqs))
	for _, c := range reqs {
		cards = append(cards, models.Flashcard{
			Front: strings.TrimSpace(c.Front),
			Back:  strings.TrimSpace(c.Back),
		})
	}
	return cards
}

func (h *FlashcardHandler) CreateDeck(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDeckRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	deck := &models.FlashcardDeck{
		UserID:      userID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
	}
	cards := toCards(req.Cards)

	if err := h.flashRepo.CreateDeck(r.Context(), deck, cards); err != nil {
		log.Printf("create deck for user %s: %v", userID, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to create deck", r))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"deck":  deck,
		"cards": cards,
	})
}

func (h *FlashcardHandler) ListDecks(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	decks, err := h.flashRepo.ListDecksByUser(r.Context(), userID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch decks", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"decks": decks})
}

// ownedDeck resolves the {id} URL param to a deck owned by the caller. It
// writes the error response itself and returns nil when that fails.
func (h *FlashcardHandler) ownedDeck(w http.ResponseWriter, r *http.Request) *models.FlashcardDeck {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid deck ID", r))
		return nil
	}

	deck, err := h.flashRepo.GetDeckByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Deck not found", r))
		} else {
			writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch deck", r))
		}
		return nil
	}

	if deck.UserID != middleware.GetUserID(r.Context()) {
		writeJSON(w, http.StatusForbidden, errorResp("FORBIDDEN", "Access denied", r))
		return nil
	}
	return deck
}

func (h *FlashcardHandler) GetDeck(w http.ResponseWriter, r *http.Request) {
	deck := h.ownedDeck(w, r)
	if deck == nil {
		return
	}

	cards, err := h.flashRepo.GetCardsByDeck(r.Context(), deck.ID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch cards", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"deck":  deck,
		"cards": cards,
	})
}

func (h *FlashcardHandler) AddCards(w http.ResponseWriter, r *http.Request) {
	deck := h.ownedDeck(w, r)
	if deck == nil {
		return
	}

	var req struct {
		Cards []models.CreateCardRequest `json:"cards" validate:"required,min=1,max=1000,dive"`
	}
	if !decodeAndValidate(w, r, &req) {
		return
	}

	cards := toCards(req.Cards)
	if err := h.flashRepo.CreateCards(r.Context(), deck.ID, cards); err != nil {
		log.Printf("add cards to deck %s: %v", deck.ID, err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to add cards", r))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"cards": cards})
}

func (h *FlashcardHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	deck := h.ownedDeck(w, r)
	if deck == nil {
		return
	}

	favorite, err := h.flashRepo.ToggleFavorite(r.Context(), deck.ID, deck.UserID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update favorite", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"is_favorite": favorite})
}

func (h *FlashcardHandler) DeleteDeck(w http.ResponseWriter, r *http.Request) {
	deck := h.ownedDeck(w, r)
	if deck == nil {
		return
	}

	if err := h.flashRepo.DeleteDeck(r.Context(), deck.ID, deck.UserID); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to delete deck", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Deck deleted"})
}

func (h *FlashcardHandler) GetDeckStats(w http.ResponseWriter, r *http.Request) {
	deck := h.ownedDeck(w, r)
	if deck == nil {
		return
	}

	stats, err := h.flashRepo.GetDeckStats(r.Context(), deck.ID, h.now())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch stats", r))
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// CardReviews lists the caller's rating history for one card.
func (h *FlashcardHandler) CardReviews(w http.ResponseWriter, r *http.Request) {
	cardID, err := uuid.Parse(chi.URLParam(r, "cardID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid card ID", r))
		return
	}

	userID := middleware.GetUserID(r.Context())
	reviews, err := h.reviewRepo.ListByFlashcard(r.Context(), cardID, userID, 50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to fetch reviews", r))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"reviews": reviews})
}

package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"flashdeck-backend/internal/handlers"
	"flashdeck-backend/internal/middleware"
	"flashdeck-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	limiter *middleware.RateLimiter,
	flashcardHandler *handlers.FlashcardHandler,
	studySessionHandler *handlers.StudySessionHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		timeout := chimiddleware.Timeout(30 * time.Second)

		// ──── Deck Routes ────
		r.Route("/flashcards/decks", func(r chi.Router) {
			r.Use(timeout)
			r.Use(jwtAuth.Middleware)
			r.Use(limiter.Middleware)
			r.Get("/", flashcardHandler.ListDecks)
			r.Post("/", flashcardHandler.CreateDeck)
			r.Get("/{id}", flashcardHandler.GetDeck)
			r.Post("/{id}/cards", flashcardHandler.AddCards)
			r.Get("/{id}/stats", flashcardHandler.GetDeckStats)
			r.Put("/{id}/favorite", flashcardHandler.ToggleFavorite)
			r.Delete("/{id}", flashcardHandler.DeleteDeck)
		})

		r.Route("/flashcards/cards", func(r chi.Router) {
			r.Use(timeout)
			r.Use(jwtAuth.Middleware)
			r.Use(limiter.Middleware)
			r.Get("/{cardID}/reviews", flashcardHandler.CardReviews)
		})

		// ──── Study Routes ────
		r.Route("/study", func(r chi.Router) {
			r.Use(timeout)
			r.Use(jwtAuth.Middleware)
			r.Use(limiter.Middleware)
			r.Post("/decks/{deckID}/sessions", studySessionHandler.Start)
			r.Get("/history", studySessionHandler.History)

			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", studySessionHandler.Get)
				r.Post("/flip", studySessionHandler.Flip)
				r.Post("/rating", studySessionHandler.Rate)
				r.Get("/summary", studySessionHandler.Summary)
				r.Delete("/", studySessionHandler.Abandon)
			})
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}

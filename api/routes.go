package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"streamflix/handlers"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	watchlistHandler *handlers.WatchlistHandler,
	historyHandler *handlers.HistoryHandler,
	sessionHandler *handlers.SessionHandler,
	catalogHandler *handlers.CatalogHandler,
	notificationsHandler *handlers.NotificationsHandler,
) {
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.Use(corsMiddleware)

	// Watchlist
	apiRouter.HandleFunc("/watchlist", watchlistHandler.List).Methods(http.MethodGet)
	apiRouter.HandleFunc("/watchlist", watchlistHandler.Add).Methods(http.MethodPost)
	apiRouter.HandleFunc("/watchlist/contains", watchlistHandler.Contains).Methods(http.MethodGet)
	apiRouter.HandleFunc("/watchlist/{id}", watchlistHandler.Remove).Methods(http.MethodDelete)

	// Watch history
	apiRouter.HandleFunc("/history", historyHandler.List).Methods(http.MethodGet)
	apiRouter.HandleFunc("/history", historyHandler.Record).Methods(http.MethodPost)
	apiRouter.HandleFunc("/history/{id}", historyHandler.Remove).Methods(http.MethodDelete)

	// Accounts and session
	apiRouter.HandleFunc("/accounts", sessionHandler.ListAccounts).Methods(http.MethodGet)
	apiRouter.HandleFunc("/accounts", sessionHandler.CreateAccount).Methods(http.MethodPost)
	apiRouter.HandleFunc("/accounts/{id}", sessionHandler.RemoveAccount).Methods(http.MethodDelete)
	apiRouter.HandleFunc("/session", sessionHandler.Current).Methods(http.MethodGet)
	apiRouter.HandleFunc("/session/signin", sessionHandler.SignIn).Methods(http.MethodPost)
	apiRouter.HandleFunc("/session/signout", sessionHandler.SignOut).Methods(http.MethodPost)

	// Catalog
	apiRouter.HandleFunc("/catalog/trending", catalogHandler.Trending).Methods(http.MethodGet)
	apiRouter.HandleFunc("/catalog/search", catalogHandler.Search).Methods(http.MethodGet)
	apiRouter.HandleFunc("/catalog/movie/upcoming", catalogHandler.Upcoming).Methods(http.MethodGet)
	apiRouter.HandleFunc("/catalog/{type}/popular", catalogHandler.Popular).Methods(http.MethodGet)
	apiRouter.HandleFunc("/catalog/{type}/top-rated", catalogHandler.TopRated).Methods(http.MethodGet)
	apiRouter.HandleFunc("/catalog/{type}/discover", catalogHandler.Discover).Methods(http.MethodGet)
	apiRouter.HandleFunc("/catalog/{type}/genres", catalogHandler.Genres).Methods(http.MethodGet)
	apiRouter.HandleFunc("/catalog/movie/{id}", catalogHandler.MovieDetails).Methods(http.MethodGet)
	apiRouter.HandleFunc("/catalog/tv/{id}", catalogHandler.TVDetails).Methods(http.MethodGet)
	apiRouter.HandleFunc("/catalog/tv/{id}/season/{season}", catalogHandler.Season).Methods(http.MethodGet)
	apiRouter.HandleFunc("/catalog/{type}/{id}/videos", catalogHandler.Videos).Methods(http.MethodGet)

	// Notifications
	apiRouter.HandleFunc("/notifications", notificationsHandler.Drain).Methods(http.MethodGet)

	// Health
	apiRouter.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)
}

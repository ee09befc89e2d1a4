package concerts

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterConcertRoutes registers the concert REST routes and the channel
// upgrade route on r.
func RegisterConcertRoutes(r *mux.Router, handler *ConcertHandler) {
	r.HandleFunc("/api/concerts/{id}", handler.GetConcert).Methods(http.MethodGet)
	r.HandleFunc("/api/concerts/{id}/ws", handler.ServeWS).Methods(http.MethodGet)

	r.HandleFunc("/api/social/concerts", handler.ListConcerts).Methods(http.MethodGet)
	r.HandleFunc("/api/social/concerts", handler.CreateConcert).Methods(http.MethodPost)

	r.HandleFunc("/api/metrics", handler.Metrics).Methods(http.MethodGet)
}

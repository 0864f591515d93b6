package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"shotmark/internal/middleware"
	"shotmark/internal/room"
)

func SetupRoutes(h *Handler, roomHandler *room.Handler) *mux.Router {
	r := mux.NewRouter()

	// Middleware runs in order: tracing first, then recovery, then CORS.
	r.Use(middleware.TracingMiddleware)
	r.Use(middleware.ErrorRecoveryMiddleware)
	r.Use(middleware.CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()

	// Screenshot endpoints
	api.HandleFunc("/screenshots", h.CreateScreenshot).Methods("POST")
	api.HandleFunc("/screenshots", h.ListScreenshots).Methods("GET")
	api.HandleFunc("/screenshots/{id}", h.GetScreenshot).Methods("GET")

	// Annotation endpoints
	api.HandleFunc("/screenshots/{id}/annotations", h.GetAnnotations).Methods("GET")
	api.HandleFunc("/screenshots/{id}/annotations", h.PutAnnotations).Methods("PUT")
	api.HandleFunc("/annotations/{id}", h.DeleteAnnotation).Methods("DELETE")

	// Record link endpoints
	api.HandleFunc("/annotations/{id}/links", h.CreateLink).Methods("POST")
	api.HandleFunc("/annotations/{id}/links", h.DeleteLink).Methods("DELETE")
	api.HandleFunc("/annotations/{id}/links", h.GetLinks).Methods("GET")
	api.HandleFunc("/records/{type}/{recordID}/annotations", h.GetRecordAnnotations).Methods("GET")

	// Health check endpoint
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// WebSocket route
	r.HandleFunc("/ws/rooms/{screenshotID}", roomHandler.HandleRoomConnection)

	return r
}

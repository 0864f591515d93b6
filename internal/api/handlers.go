package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"shotmark/internal/models"
	"shotmark/internal/repository"
	"shotmark/internal/room"
)

// Handler serves the REST surface. The websocket endpoint lives on the
// room handler and is mounted by the router alongside these.
type Handler struct {
	screenshots ScreenshotStore
	annotations AnnotationStore
	links       LinkStore
	rooms       RoomPublisher
}

func NewHandler(
	screenshots ScreenshotStore,
	annotations AnnotationStore,
	links LinkStore,
	rooms RoomPublisher,
) *Handler {
	return &Handler{
		screenshots: screenshots,
		annotations: annotations,
		links:       links,
		rooms:       rooms,
	}
}

// Screenshot handlers

func (h *Handler) CreateScreenshot(w http.ResponseWriter, r *http.Request) {
	var screenshot models.Screenshot
	if err := json.NewDecoder(r.Body).Decode(&screenshot); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.screenshots.Create(r.Context(), &screenshot); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusCreated, screenshot)
}

func (h *Handler) ListScreenshots(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil {
			limit = parsed
		}
	}

	screenshots, err := h.screenshots.List(r.Context(), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"screenshots": screenshots,
		"limit":       limit,
	})
}

func (h *Handler) GetScreenshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	screenshot, err := h.screenshots.GetByID(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, screenshot)
}

// Annotation handlers

func (h *Handler) GetAnnotations(w http.ResponseWriter, r *http.Request) {
	screenshotID := mux.Vars(r)["id"]

	annotations, err := h.annotations.GetByScreenshot(r.Context(), screenshotID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"annotations": annotations,
	})
}

// PutAnnotations replaces the whole annotation set for a screenshot in
// one batch. The response carries the fresh set plus the id_map of
// client ids promoted to server ids, which callers apply before their
// next save. Each promoted annotation is announced to the screenshot's
// room.
func (h *Handler) PutAnnotations(w http.ResponseWriter, r *http.Request) {
	screenshotID := mux.Vars(r)["id"]

	if _, err := h.screenshots.GetByID(r.Context(), screenshotID); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	var body struct {
		Annotations []models.Annotation `json:"annotations"`
		User        models.UserInfo     `json:"user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	annotations, promoted, err := h.annotations.BatchReplace(r.Context(), screenshotID, body.Annotations)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	for _, durableID := range promoted {
		h.rooms.PublishEvent(room.RoomID(screenshotID), models.RoomEvent{
			Type:         models.EventAnnotationCreated,
			User:         body.User,
			AnnotationID: durableID,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"annotations": annotations,
		"id_map":      promoted,
	})
}

func (h *Handler) DeleteAnnotation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	screenshotID := r.URL.Query().Get("screenshot_id")

	if err := h.annotations.Delete(r.Context(), id); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	if screenshotID != "" {
		h.rooms.PublishEvent(room.RoomID(screenshotID), models.RoomEvent{
			Type: models.EventAnnotationDeleted,
			User: models.UserInfo{
				ID:   r.URL.Query().Get("user_id"),
				Name: r.URL.Query().Get("user_name"),
			},
			AnnotationID: id,
		})
	}

	w.WriteHeader(http.StatusNoContent)
}

// Link handlers

type linkRequest struct {
	RecordType models.RecordType `json:"record_type"`
	RecordID   string            `json:"record_id"`
}

func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	annotationID := mux.Vars(r)["id"]

	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	link, err := h.links.LinkToRecord(r.Context(), annotationID, req.RecordType, req.RecordID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusCreated, link)
}

func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	annotationID := mux.Vars(r)["id"]

	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.links.UnlinkFromRecord(r.Context(), annotationID, req.RecordType, req.RecordID); err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetLinks(w http.ResponseWriter, r *http.Request) {
	annotationID := mux.Vars(r)["id"]

	links, err := h.links.LinksFor(r.Context(), annotationID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"links": links,
	})
}

// GetRecordAnnotations is the reverse lookup: every annotation linked
// to one bug or test case, for the record detail view.
func (h *Handler) GetRecordAnnotations(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	recordType := models.RecordType(vars["type"])
	recordID := vars["recordID"]

	if recordType != models.RecordBug && recordType != models.RecordTestCase {
		http.Error(w, "record type must be bug or testcase", http.StatusBadRequest)
		return
	}

	annotations, err := h.links.AnnotationsForRecord(r.Context(), recordType, recordID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"annotations": annotations,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	if errors.Is(err, repository.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

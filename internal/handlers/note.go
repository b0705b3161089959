package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/securenotes/apiserver/internal/services"
	"github.com/securenotes/apiserver/internal/store"
	"github.com/securenotes/apiserver/types"
)

// NoteHandler provides HTTP handlers for the note lifecycle. Every route
// requires an authenticated session; the owner for each operation is the
// session subject, never request data.
type NoteHandler struct {
	noteService *services.NoteService
}

// NewNoteHandler constructs a handler with the provided service.
func NewNoteHandler(noteService *services.NoteService) *NoteHandler {
	return &NoteHandler{noteService: noteService}
}

// NoteRouter registers note routes on the given router.
func NoteRouter(r chi.Router, noteService *services.NoteService, authMiddleware func(http.Handler) http.Handler) {
	handler := NewNoteHandler(noteService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListActive)
	r.Get("/archived", handler.ListArchived)
	r.Get("/trash", handler.ListTrashed)
	r.Post("/", handler.Create)
	r.Route("/{noteID}", func(r chi.Router) {
		r.Put("/", handler.Update)
		r.Put("/archive", handler.Archive)
		r.Put("/unarchive", handler.Unarchive)
		r.Put("/trash", handler.Trash)
		r.Put("/restore", handler.Restore)
		r.Delete("/permanent", handler.Delete)
	})
}

func (h *NoteHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.noteService.ListActive)
}

func (h *NoteHandler) ListArchived(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.noteService.ListArchived)
}

func (h *NoteHandler) ListTrashed(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.noteService.ListTrashed)
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	ownerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req NoteCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	note, err := h.noteService.Create(r.Context(), ownerID, services.CreateNoteInput{
		Title:   req.Title,
		Content: req.Content,
		Color:   req.Color,
		Label:   req.Label,
	})
	if err != nil {
		writeNoteError(w, err, "failed to create note")
		return
	}

	writeJSON(w, http.StatusCreated, note)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.ownerAndNoteID(w, r)
	if !ok {
		return
	}

	var req NoteUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	note, err := h.noteService.Update(r.Context(), ownerID, id, services.NotePatch{
		Title:   req.Title,
		Content: req.Content,
		Color:   req.Color,
		Label:   req.Label,
	})
	if err != nil {
		writeNoteError(w, err, "failed to update note")
		return
	}

	writeJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) Archive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.noteService.Archive, "failed to archive note")
}

func (h *NoteHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.noteService.Unarchive, "failed to unarchive note")
}

func (h *NoteHandler) Trash(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.noteService.Trash, "failed to trash note")
}

func (h *NoteHandler) Restore(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.noteService.Restore, "failed to restore note")
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ownerID, id, ok := h.ownerAndNoteID(w, r)
	if !ok {
		return
	}

	if err := h.noteService.Purge(r.Context(), ownerID, id); err != nil {
		writeNoteError(w, err, "failed to delete note")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *NoteHandler) list(w http.ResponseWriter, r *http.Request, load func(ctx context.Context, ownerID int) ([]types.Note, error)) {
	ownerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	notes, err := load(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list notes")
		return
	}

	writeJSON(w, http.StatusOK, notes)
}

func (h *NoteHandler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, ownerID, id int) (types.Note, error), failMessage string) {
	ownerID, id, ok := h.ownerAndNoteID(w, r)
	if !ok {
		return
	}

	note, err := apply(r.Context(), ownerID, id)
	if err != nil {
		writeNoteError(w, err, failMessage)
		return
	}

	writeJSON(w, http.StatusOK, note)
}

func (h *NoteHandler) ownerAndNoteID(w http.ResponseWriter, r *http.Request) (ownerID, noteID int, ok bool) {
	ownerID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return 0, 0, false
	}

	raw := chi.URLParam(r, "noteID")
	noteID, err = strconv.Atoi(raw)
	if err != nil || noteID < 1 {
		writeError(w, http.StatusBadRequest, "invalid note id")
		return 0, 0, false
	}
	return ownerID, noteID, true
}

// writeNoteError maps lifecycle engine errors onto the HTTP taxonomy.
func writeNoteError(w http.ResponseWriter, err error, failMessage string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "note not found")
	case errors.Is(err, services.ErrForbidden):
		writeError(w, http.StatusForbidden, "not authorized")
	case errors.Is(err, services.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, failMessage)
	}
}

type NoteCreateRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	Color   string `json:"color"`
	Label   string `json:"label"`
}

type NoteUpdateRequest struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
	Color   *string `json:"color"`
	Label   *string `json:"label"`
}

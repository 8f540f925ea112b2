package rest

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"beacon/cmd/identity"
	"beacon/cmd/internal/contact"
)

const maxContactBodyBytes = 32 << 10

type contactRequest struct {
	Name          string  `json:"name"`
	Phone         *string `json:"phone"`
	Email         *string `json:"email"`
	ContactUserID *string `json:"contact_user_id"`
	Status        string  `json:"status"`
}

type contactStatusRequest struct {
	Status string `json:"status"`
}

type contactResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Phone         *string   `json:"phone,omitempty"`
	Email         *string   `json:"email,omitempty"`
	ContactUserID *string   `json:"contact_user_id,omitempty"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
}

// ContactHandler exposes trusted contact management over REST.
type ContactHandler struct {
	log      *slog.Logger
	tokens   TokenVerifier
	contacts *contact.Service
}

// NewContactHandler constructs a ContactHandler.
func NewContactHandler(log *slog.Logger, tokens TokenVerifier, contacts *contact.Service) *ContactHandler {
	if log == nil {
		log = slog.Default()
	}
	return &ContactHandler{log: log, tokens: tokens, contacts: contacts}
}

// Register wires contact routes onto the provided mux.
func (h *ContactHandler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("POST /users/{user_id}/contacts", requireUser(h.tokens, h.handleCreate))
	mux.HandleFunc("GET /users/{user_id}/contacts", requireUser(h.tokens, h.handleList))
	mux.HandleFunc("DELETE /users/{user_id}/contacts/{contact_id}", requireUser(h.tokens, h.handleDelete))
	mux.HandleFunc("PUT /users/{user_id}/contacts/{contact_id}/status", requireUser(h.tokens, h.handleUpdateStatus))
}

func (h *ContactHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := decodeJSON(w, r, maxContactBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	c, err := h.contacts.Create(r.Context(), r.PathValue("user_id"), contact.CreateInput{
		Name:          req.Name,
		Phone:         req.Phone,
		Email:         req.Email,
		ContactUserID: req.ContactUserID,
		Status:        contact.Status(req.Status),
	})
	switch {
	case identity.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "unknown user")
		return
	case contact.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", "contact already exists")
		return
	case errors.Is(err, contact.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
		return
	case err != nil:
		h.log.Error("rest.contact.create.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not create contact")
		return
	}
	writeJSON(w, http.StatusCreated, toContactResponse(c))
}

func (h *ContactHandler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.contacts.List(r.Context(), r.PathValue("user_id"))
	if err != nil {
		h.log.Error("rest.contact.list.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not list contacts")
		return
	}

	out := make([]contactResponse, 0, len(list))
	for _, c := range list {
		out = append(out, toContactResponse(c))
	}
	writeJSON(w, http.StatusOK, map[string][]contactResponse{"contacts": out})
}

func (h *ContactHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	err := h.contacts.Delete(r.Context(), r.PathValue("user_id"), r.PathValue("contact_id"))
	switch {
	case contact.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "unknown contact")
		return
	case err != nil:
		h.log.Error("rest.contact.delete.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not delete contact")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ContactHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req contactStatusRequest
	if err := decodeJSON(w, r, maxContactBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body")
		return
	}

	c, err := h.contacts.UpdateStatus(r.Context(), r.PathValue("user_id"), r.PathValue("contact_id"), contact.Status(req.Status))
	switch {
	case errors.Is(err, contact.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_input", "invalid status")
		return
	case contact.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not_found", "unknown contact")
		return
	case err != nil:
		h.log.Error("rest.contact.status.fail", "err", err)
		writeError(w, http.StatusInternalServerError, "internal", "could not update status")
		return
	}
	writeJSON(w, http.StatusOK, toContactResponse(c))
}

func toContactResponse(c contact.Contact) contactResponse {
	return contactResponse{
		ID:            c.ID,
		Name:          c.Name,
		Phone:         c.Phone,
		Email:         c.Email,
		ContactUserID: c.ContactUserID,
		Status:        string(c.Status),
		CreatedAt:     c.CreatedAt,
	}
}

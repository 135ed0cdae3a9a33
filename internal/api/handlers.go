package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/julianstephens/habitsync/internal/gateway"
	"github.com/julianstephens/habitsync/internal/session"
)

const maxBodyBytes = 1 << 20

type createResponse struct {
	ID string `json:"id"`
}

type listResponse struct {
	Documents []gateway.Record `json:"documents"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if p, ok := a.Gateway.(gateway.Pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			a.Log.Warn("health check failed", "err", err)
			writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleList(w http.ResponseWriter, r *http.Request) {
	owner, _ := session.OwnerFromContext(r.Context())
	if q := r.URL.Query().Get("owner_id"); q != "" && q != owner {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Cannot list another owner's documents")
		return
	}
	docs, err := a.Gateway.List(r.Context(), chi.URLParam(r, "collection"), owner)
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Documents: docs})
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	owner, _ := session.OwnerFromContext(r.Context())
	rec, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	if v, set := rec[gateway.OwnerField]; set && v != owner {
		writeError(w, http.StatusForbidden, "FORBIDDEN", "owner_id does not match token")
		return
	}
	rec[gateway.OwnerField] = owner
	delete(rec, "id")

	id, err := a.Gateway.Create(r.Context(), chi.URLParam(r, "collection"), rec)
	if err != nil {
		a.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createResponse{ID: id})
}

func (a *API) handleUpdate(w http.ResponseWriter, r *http.Request) {
	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "id")
	patch, ok := decodeRecord(w, r)
	if !ok {
		return
	}
	if _, set := patch[gateway.OwnerField]; set {
		writeError(w, http.StatusBadRequest, "INVALID_PATCH", "owner_id cannot be changed")
		return
	}
	delete(patch, "id")
	if !a.authorize(w, r, collection, id) {
		return
	}
	if err := a.Gateway.Update(r.Context(), collection, id, patch); err != nil {
		a.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleDelete(w http.ResponseWriter, r *http.Request) {
	collection, id := chi.URLParam(r, "collection"), chi.URLParam(r, "id")
	if !a.authorize(w, r, collection, id) {
		return
	}
	if err := a.Gateway.Delete(r.Context(), collection, id); err != nil {
		a.storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// authorize answers 404 unless the token's owner holds the document, so ids
// of other owners are indistinguishable from missing ones
func (a *API) authorize(w http.ResponseWriter, r *http.Request, collection, id string) bool {
	owner, _ := session.OwnerFromContext(r.Context())
	owns, err := a.owns(r.Context(), collection, id, owner)
	if err != nil {
		a.storeError(w, err)
		return false
	}
	if !owns {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Document not found")
		return false
	}
	return true
}

func (a *API) owns(ctx context.Context, collection, id, owner string) (bool, error) {
	docs, err := a.Gateway.List(ctx, collection, owner)
	if err != nil {
		return false, err
	}
	for _, d := range docs {
		if docID, _ := d.ID(); docID == id {
			return true, nil
		}
	}
	return false, nil
}

func decodeRecord(w http.ResponseWriter, r *http.Request) (gateway.Record, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var rec gateway.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil || rec == nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Body must be a JSON object")
		return nil, false
	}
	return rec, true
}

func (a *API) storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, gateway.ErrNotFound) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Document not found")
		return
	}
	a.Log.Error("store request failed", "err", err)
	writeError(w, http.StatusServiceUnavailable, "STORE_ERROR", "Store request failed")
}

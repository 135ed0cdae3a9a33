package httpdoc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/julianstephens/habitsync/internal/errors"
	"github.com/julianstephens/habitsync/internal/gateway"
)

var _ gateway.Gateway = (*Client)(nil)
var _ gateway.Pinger = (*Client)(nil)

func TestStatusErrorClassification(t *testing.T) {
	tests := []struct {
		code      int
		temporary bool
		permanent bool
	}{
		{code: 400, permanent: true},
		{code: 403, permanent: true},
		{code: 404, permanent: true},
		{code: 408, temporary: true},
		{code: 429, temporary: true},
		{code: 500, temporary: true},
		{code: 503, temporary: true},
	}
	for _, tt := range tests {
		e := &StatusError{StatusCode: tt.code}
		assert.Equal(t, tt.temporary, e.Temporary(), "Temporary for %d", tt.code)
		assert.Equal(t, tt.permanent, e.Permanent(), "Permanent for %d", tt.code)
	}

	assert.Equal(t, apperrors.KindPermanent, apperrors.Classify(&StatusError{StatusCode: 403}))
	assert.Equal(t, apperrors.KindTransient, apperrors.Classify(&StatusError{StatusCode: 502}))
	assert.ErrorIs(t, &StatusError{StatusCode: 404}, gateway.ErrNotFound)
}

func TestClientSendsTokenAndDecodesErrors(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": "UNAVAILABLE", "message": "down"}})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", WithToken(func() (string, error) { return "tok", nil }))
	_, err := c.Create(context.Background(), "habits", gateway.Record{"name": "Read"})
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.Equal(t, "UNAVAILABLE", se.Code)
	assert.Equal(t, "down", se.Message)
	assert.Equal(t, "Bearer tok", gotAuth)
}

func TestClientPaths(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.Method+" "+r.URL.RequestURI())
		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"new"}`))
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"documents":[{"id":"h1","name":"Read"}]}`))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := New(srv.URL)

	id, err := c.Create(ctx, "habits", gateway.Record{"name": "Read"})
	require.NoError(t, err)
	assert.Equal(t, "new", id)
	require.NoError(t, c.Update(ctx, "habits", "h 1", gateway.Record{"icon": "x"}))
	require.NoError(t, c.Delete(ctx, "habits", "h1"))
	docs, err := c.List(ctx, "habits", "user-1")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "h1", docs[0]["id"])

	assert.Equal(t, []string{
		"POST /collections/habits",
		"PATCH /collections/habits/h%201",
		"DELETE /collections/habits/h1",
		"GET /collections/habits?owner_id=user-1",
	}, paths)
}

func TestClientTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(url).Ping(context.Background())
	require.Error(t, err)
	assert.NotEqual(t, apperrors.KindPermanent, apperrors.Classify(err))
}

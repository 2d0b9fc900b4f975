package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSuccess(t *testing.T) {
	w := httptest.NewRecorder()
	Success(w, http.StatusCreated, map[string]string{"status": "ok"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = httptest.NewRecorder()
	Success(w, http.StatusNoContent, nil)
	assert.Empty(t, w.Body.String())
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusBadRequest, "bad input")

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "bad input", body.Error)
	assert.Empty(t, body.Fields)
}

func TestFail(t *testing.T) {
	w := httptest.NewRecorder()
	Fail(w, http.StatusUnauthorized, ErrorResponse{Error: "login", Code: "AUTH_REQUIRED", Redirect: "/auth/sign-in"})

	assert.JSONEq(t, `{"error":"login","code":"AUTH_REQUIRED","redirect":"/auth/sign-in"}`, w.Body.String())
}

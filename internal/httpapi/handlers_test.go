package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/meetbot/platform/internal/apperr"
)

func TestWriteJSONError_MapsKindToStatus(t *testing.T) {
	cases := []struct {
		kind apperr.Kind
		want int
	}{
		{apperr.Validation, http.StatusBadRequest},
		{apperr.Unauthenticated, http.StatusUnauthorized},
		{apperr.Credential, http.StatusForbidden},
		{apperr.Conflict, http.StatusConflict},
		{apperr.BackingStoreUnavailable, http.StatusServiceUnavailable},
		{apperr.NotFound, http.StatusNotFound},
		{apperr.LaunchFailed, http.StatusInternalServerError},
	}

	for _, c := range cases {
		rec := httptest.NewRecorder()
		writeJSONError(rec, apperr.New(c.kind, "boom"))
		if rec.Code != c.want {
			t.Errorf("kind %v: expected status %d, got %d", c.kind, c.want, rec.Code)
		}

		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode error body: %v", err)
		}
		if body["status"] != "error" {
			t.Errorf("expected status field 'error', got %q", body["status"])
		}
	}
}

func TestRequestBot_MalformedBodyIsValidationError(t *testing.T) {
	api := &API{}
	req := httptest.NewRequest(http.MethodPost, "/bots", nil)
	req.Body = http.NoBody
	rec := httptest.NewRecorder()

	api.requestBot(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a request with no body, got %d", rec.Code)
	}
}

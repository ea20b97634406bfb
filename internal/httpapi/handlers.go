package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/meetbot/platform/internal/apperr"
	"github.com/meetbot/platform/internal/auth"
	"github.com/meetbot/platform/internal/canonical"
	"github.com/meetbot/platform/internal/health"
	"github.com/meetbot/platform/internal/orchestrator"
	"github.com/meetbot/platform/internal/readapi"
)

// API wires the orchestrator and read API operations behind the HTTP
// surface described in §6.
type API struct {
	orch    *orchestrator.Orchestrator
	reads   *readapi.ReadAPI
	auth    *auth.Middleware
	limiter *TenantRateLimiter
	health  *health.Manager
	logger  *zap.Logger
}

func New(orch *orchestrator.Orchestrator, reads *readapi.ReadAPI, authMW *auth.Middleware, limiter *TenantRateLimiter, healthMgr *health.Manager, logger *zap.Logger) *API {
	return &API{orch: orch, reads: reads, auth: authMW, limiter: limiter, health: healthMgr, logger: logger}
}

func (a *API) Mux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Handler(a.health))

	mux.Handle("POST /bots", a.auth.HTTPMiddleware(a.limiter.Middleware("post_bots")(http.HandlerFunc(a.requestBot))))
	mux.Handle("DELETE /bots/{platform}/{native_id}", a.auth.HTTPMiddleware(http.HandlerFunc(a.stopBot)))
	mux.Handle("GET /meetings", a.auth.HTTPMiddleware(http.HandlerFunc(a.listMeetings)))
	mux.Handle("GET /transcripts/{platform}/{native_id}", a.auth.HTTPMiddleware(http.HandlerFunc(a.getTranscript)))

	return mux
}

type requestBotBody struct {
	Platform   string `json:"platform"`
	MeetingURL string `json:"meeting_url"`
	BotName    string `json:"bot_name,omitempty"`
}

func (a *API) requestBot(w http.ResponseWriter, r *http.Request) {
	var body requestBotBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSONError(w, apperr.New(apperr.Validation, "malformed request body"))
		return
	}

	token := r.Header.Get("X-API-Key")
	result, err := a.orch.RequestBot(r.Context(), token, canonical.Platform(body.Platform), body.MeetingURL, body.BotName)
	if err != nil {
		if apperr.KindOf(err) == apperr.Conflict {
			platform := canonical.Platform(body.Platform)
			nativeID, _ := canonical.Extract(platform, body.MeetingURL)
			triple := canonical.Triple{Platform: platform, NativeMeetingID: nativeID, Token: token}
			writeJSON(w, http.StatusConflict, map[string]string{"status": "conflict", "meeting_id": triple.String()})
			return
		}
		writeJSONError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status":       result.Status,
		"meeting_id":   result.MeetingID,
		"container_id": result.ContainerID,
	})
}

func (a *API) stopBot(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-API-Key")
	platform := canonical.Platform(r.PathValue("platform"))
	nativeID := r.PathValue("native_id")

	result, err := a.orch.StopBot(r.Context(), token, platform, nativeID)
	if err != nil {
		writeJSONError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (a *API) listMeetings(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-API-Key")
	meetings, err := a.reads.ListMeetings(r.Context(), token)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"meetings": meetings})
}

func (a *API) getTranscript(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-API-Key")
	platform := r.PathValue("platform")
	nativeID := r.PathValue("native_id")

	transcript, err := a.reads.GetTranscript(r.Context(), token, platform, nativeID)
	if err != nil {
		writeJSONError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, transcript)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, err error) {
	status := apperr.KindOf(err).HTTPStatus()
	msg := err.Error()
	if strings.TrimSpace(msg) == "" {
		msg = "internal error"
	}
	writeJSON(w, status, map[string]string{"status": "error", "message": msg})
}

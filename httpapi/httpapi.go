// Package httpapi mounts the token issuance pipeline onto net/http. It owns
// request parsing, content negotiation and the mapping from pipeline errors
// to HTTP statuses; the services underneath never see an http.Request.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/opentelco/tokenbroker/broker"
	"github.com/opentelco/tokenbroker/internal/logctx"
	"github.com/opentelco/tokenbroker/oauth"
	"github.com/opentelco/tokenbroker/telcoissuer"
)

var (
	jsonMediaType  = contenttype.NewMediaType("application/json")
	jsonMediaTypes = []contenttype.MediaType{jsonMediaType}
)

// Issuer is the slice of the token pipeline the HTTP layer needs. Both the
// broker and the telco issuer satisfy it.
type Issuer interface {
	IssueToken(ctx context.Context, id oauth.TelecomIdentifier, authCode string) (*oauth.Token, error)
}

// writeJSONError emits the transport-level error body. Shape:
// {"error":{"code":<httpStatus>,"message":"<reason>"}}
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": status, "message": msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", jsonMediaType.String())
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleToken parses a token request, runs it through the issuer and maps
// the outcome to an HTTP response.
func handleToken(issuer Issuer, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := contenttype.GetAcceptableMediaType(r, jsonMediaTypes); err != nil {
			writeJSONError(w, http.StatusNotAcceptable, "response must be acceptable as application/json")
			return
		}

		q := r.URL.Query()
		id, err := oauth.NewTelecomIdentifier(q.Get("mcc"), q.Get("sn"))
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		if err := r.ParseForm(); err != nil {
			writeJSONError(w, http.StatusBadRequest, "malformed form body")
			return
		}
		authCode := strings.TrimSpace(r.PostFormValue("auth_code"))
		if authCode == "" {
			writeJSONError(w, http.StatusBadRequest, "auth_code is required")
			return
		}

		ctx := logctx.WithTelecomData(r.Context(), &logctx.TelecomData{MCC: id.MCC(), SN: id.SN()})

		tok, err := issuer.IssueToken(ctx, id, authCode)
		if err != nil {
			writeIssueError(ctx, w, log, err)
			return
		}
		writeJSON(w, http.StatusOK, tok)
	}
}

// writeIssueError translates pipeline errors into client-facing statuses.
// Anything unrecognized stays a generic 500; the detail goes to the log only.
func writeIssueError(ctx context.Context, w http.ResponseWriter, log *slog.Logger, err error) {
	var ue *broker.UpstreamError
	switch {
	case errors.Is(err, broker.ErrRouteNotFound):
		writeJSONError(w, http.StatusBadRequest, "Destination Telco data not found")
	case errors.As(err, &ue):
		writeJSONError(w, ue.StatusCode, "Telco service error: "+ue.Body)
	case errors.Is(err, broker.ErrBackendUnavailable):
		writeJSONError(w, http.StatusServiceUnavailable, "failed to contact telco service")
	case errors.Is(err, telcoissuer.ErrInvalidAuthCode):
		writeJSONError(w, http.StatusUnauthorized, "invalid auth code")
	default:
		log.ErrorContext(ctx, "token issuance failed", "err", err)
		writeJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}

// withRequestLogging tags each request with an id, threads it through the
// context for logctx, and emits one access log line per request.
func withRequestLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rd := &logctx.RequestData{
			RequestID:  uuid.NewString(),
			Method:     r.Method,
			Path:       r.URL.Path,
			RemoteAddr: r.RemoteAddr,
		}
		ctx := logctx.WithRequestData(r.Context(), rd)
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))
		log.InfoContext(ctx, "http request served",
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

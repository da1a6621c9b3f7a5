package caldav

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kirilledition/televent/internal/auth"
	"github.com/kirilledition/televent/internal/config"
	"github.com/kirilledition/televent/internal/dom"
	"github.com/kirilledition/televent/internal/ids"
	"github.com/kirilledition/televent/internal/requestid"
	"github.com/kirilledition/televent/internal/store"
)

// Engine is CalDAVEngine (§4.5): it owns the whole HTTP surface under
// cfg.HTTP.BasePath. Grounded on the teacher's Handlers struct, trimmed of
// the ACL provider and directory dependency Televent has no use for.
type Engine struct {
	store  store.Store
	gate   *auth.Gate
	logger zerolog.Logger

	basePath    string
	maxICSBytes int64
	prodID      string
}

func NewEngine(s store.Store, gate *auth.Gate, cfg *config.Config, logger zerolog.Logger) *Engine {
	return &Engine{
		store:       s,
		gate:        gate,
		logger:      logger,
		basePath:    strings.TrimSuffix(cfg.HTTP.BasePath, "/"),
		maxICSBytes: cfg.HTTP.MaxICSBytes,
		prodID:      cfg.ICS.BuildProdID(),
	}
}

// ServeHTTP dispatches on method; it is mounted at cfg.HTTP.BasePath by
// cmd/televentd's router.
func (e *Engine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		e.handleOptions(w, r)
		return
	}

	handle, err := e.gate.Authenticate(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		e.writeError(w, r, err)
		return
	}

	userIDStr, uid, isResource := splitPath(r.URL.Path, e.basePath)
	if userIDStr == "" {
		http.NotFound(w, r)
		return
	}
	userID, err := ids.ParseUserID(userIDStr)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	// One calendar per user (§4.5): a request for anyone else's collection
	// has no ACL escape hatch in this engine, unlike the teacher's shared
	// calendars — it is simply not found.
	if userID != handle.UserID {
		http.NotFound(w, r)
		return
	}

	if depth := r.Header.Get("Depth"); depth == "infinity" {
		http.Error(w, "Depth: infinity not supported", http.StatusForbidden)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !isResource {
			http.Error(w, "GET not supported on the collection", http.StatusMethodNotAllowed)
			return
		}
		e.handleGet(w, r, userID, uid)
	case http.MethodPut:
		if !isResource {
			http.Error(w, "PUT not supported on the collection", http.StatusMethodNotAllowed)
			return
		}
		e.handlePut(w, r, userID, uid)
	case http.MethodDelete:
		if !isResource {
			http.Error(w, "DELETE not supported on the collection", http.StatusMethodNotAllowed)
			return
		}
		e.handleDelete(w, r, userID, uid)
	case "PROPFIND":
		e.handlePropfind(w, r, userID, isResource, uid)
	case "REPORT":
		e.handleReport(w, r, userID)
	default:
		w.Header().Set("Allow", "OPTIONS, PROPFIND, REPORT, GET, PUT, DELETE")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (e *Engine) handleOptions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("DAV", "1, 2, calendar-access")
	w.Header().Set("Allow", "OPTIONS, PROPFIND, REPORT, GET, PUT, DELETE")
	w.Header().Set("Accept", "text/calendar")
	w.WriteHeader(http.StatusOK)
}

// writeError maps a dom.Error to the wire response §7 assigns it. Every
// error is logged with the request's correlation id (§7), which
// requestid.Middleware has already echoed back on the response header by
// the time this runs.
func (e *Engine) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := dom.KindOf(err)
	status := dom.HTTPStatus(kind)
	reqID := requestid.FromContext(r.Context())
	if kind == dom.Unauthenticated {
		w.Header().Set("WWW-Authenticate", `Basic realm="CalDAV", charset="UTF-8"`)
	}
	logEvent := e.logger.Info()
	if kind == dom.Internal || kind == dom.Transient {
		logEvent = e.logger.Error()
	}
	logEvent.Err(err).Str("kind", kind.String()).Str("request_id", reqID).Msg("caldav request failed")
	msg := err.Error()
	if de, ok := dom.As(err); ok {
		msg = de.Msg
	}
	http.Error(w, msg, status)
}

func writeJSON(v any) []byte {
	b, _ := json.Marshal(v)
	return b
}

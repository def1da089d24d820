package server

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/sidebet/relayer/core"
)

// envelope is the `{success, ...}` / `{success:false, error:{...}}` shape
// every response uses, per spec.md §6.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// writeError translates a taxonomy *core.Error into the documented HTTP
// status and error envelope. Internal-kind errors never leak their
// underlying message to the client, per spec.md §7's "must not expose
// internal messages when the kind is Internal"; the full error chain is
// written to the server log instead.
func writeError(w http.ResponseWriter, err error) {
	coreErr, ok := core.AsError(err)
	if !ok {
		coreErr = core.WrapError(core.KindInternal, "unexpected error", err)
	}

	message := coreErr.Message
	if coreErr.Kind == core.KindInternal {
		message = "internal error"
		log.WithError(err).Error("internal error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(coreErr.Kind.HTTPStatus())
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   &errorBody{Message: message, Code: coreErr.Kind.Code()},
	})
}

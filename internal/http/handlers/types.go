// Package handlers provides the HTTP API for roomrec: the legacy /record
// form endpoints classroom clients drive, plus JSON status endpoints under
// /api/v1.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/jmylchreest/roomrec/internal/recording"
)

// legacyEnvelope is the response shape the classroom clients expect: state 1
// on success or the negative command code on failure, with a human-readable
// message in "code".
type legacyEnvelope struct {
	State int    `json:"state"`
	Code  string `json:"code"`
	Data  any    `json:"data,omitempty"`
}

// writeLegacy writes the envelope. Legacy clients key off the state field
// rather than the HTTP status, so every reply is 200.
func writeLegacy(w http.ResponseWriter, logger *slog.Logger, state int, message string) {
	writeLegacyData(w, logger, state, message, nil)
}

func writeLegacyData(w http.ResponseWriter, logger *slog.Logger, state int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(legacyEnvelope{State: state, Code: message, Data: data}); err != nil {
		logger.Warn("writing legacy response", slog.String("error", err.Error()))
	}
}

// writeOutcome maps a command result to the envelope.
func writeOutcome(w http.ResponseWriter, logger *slog.Logger, message string, err error) {
	if err != nil {
		writeLegacy(w, logger, recording.CommandCode(err), err.Error())
		return
	}
	writeLegacy(w, logger, 1, message)
}

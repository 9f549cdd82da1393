package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

// statusForKind is §7's kind→HTTP table, the one place this package is
// allowed to know both vocabularies (consensus.ErrorKind and
// ratelimit.AuthResult.ErrorKind) at once. Kinds with no fixed status here
// (provider_* kinds) never reach the router directly — they're folded into
// per_model and don't fail the request on their own.
var statusForKind = map[string]int{
	"invalid_request":   http.StatusBadRequest,
	"unauthorized":      http.StatusUnauthorized,
	"forbidden":         http.StatusForbidden,
	"rate_limited":      http.StatusTooManyRequests,
	"canceled":          499,
	"deadline_exceeded": http.StatusRequestTimeout,
	"consensus_failed":  http.StatusUnprocessableEntity,
	"overloaded":        http.StatusServiceUnavailable,
	"internal_error":    http.StatusInternalServerError,
}

// statusFor resolves an error_code to an HTTP status, defaulting to 500 for
// any kind this table doesn't recognise (never reaches the client with a
// provider-internal vocabulary word it wouldn't understand).
func statusFor(kind string) int {
	if s, ok := statusForKind[kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// writeError writes §6's error envelope and logs the encode failure the same
// way every JSON response in this package does.
func writeError(w http.ResponseWriter, kind, message string, details map[string]interface{}) {
	body := ErrorBody{
		ErrorCode: kind,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(kind))
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("server: error encoding error response: %v", err)
	}
}

// writeJSON encodes v as the 200 body, logging (never failing the request
// flow on) an encode error, mirroring healthHandler's idiom.
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: error encoding response: %v", err)
	}
}

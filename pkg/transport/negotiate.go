package transport

import (
	"encoding/json"
	"net/http"
	"strings"

	msgpack "github.com/hashicorp/go-msgpack/v2/codec"
)

// apiFormat is the wire encoding an HTTP response body is written in,
// chosen from the request's Accept header (spec §6 "content negotiation
// by Accept").
type apiFormat int

const (
	formatJSON apiFormat = iota
	formatMsgPack
)

// formatFromHeader reproduces original_source/src/server/response.rs's
// ApiFormat::from_headers exactly: a simple substring check against
// "application/msgpack" or "application/x-msgpack", JSON otherwise. No
// q-value parsing, by the same choice the original made.
func formatFromHeader(accept string) apiFormat {
	if strings.Contains(accept, "application/msgpack") || strings.Contains(accept, "application/x-msgpack") {
		return formatMsgPack
	}
	return formatJSON
}

func formatFromRequest(r *http.Request) apiFormat {
	return formatFromHeader(r.Header.Get("Accept"))
}

// writeResponse serializes data as JSON or MessagePack per format and
// writes it with the given status code, setting Content-Type to match.
func writeResponse(w http.ResponseWriter, format apiFormat, status int, data any) {
	switch format {
	case formatMsgPack:
		w.Header().Set("Content-Type", "application/msgpack")
		w.WriteHeader(status)
		enc := msgpack.NewEncoder(w, msgpackHandle)
		_ = enc.Encode(data)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(data)
	}
}

// apiError is the JSON/MessagePack error body shape for every failed
// request: a stable kind tag plus a human-readable message (spec §7).
type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, format apiFormat, status int, kind, message string) {
	writeResponse(w, format, status, apiError{Kind: kind, Message: message})
}

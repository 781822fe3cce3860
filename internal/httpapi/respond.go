// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/samber/oops"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 4 << 10

type errorResponse struct {
	Error string `json:"error"`
}

var errInternal = errorResponse{Error: "internal error"}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck // client may disconnect
	json.NewEncoder(w).Encode(body)
}

// decodeJSON reads a single JSON object with no unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return oops.Code("HTTP_BODY_INVALID").Wrap(err)
	}
	if dec.More() {
		return oops.Code("HTTP_BODY_INVALID").Wrap(errors.New("trailing data after JSON object"))
	}
	return nil
}

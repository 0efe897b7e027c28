// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Formgate Contributors

package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/formgate/formgate/internal/workflow"
)

// maxBodyBytes caps request bodies; every form here is a handful of fields.
const maxBodyBytes = 64 << 10

// errorBody is the JSON shape of every failed response.
type errorBody struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type messageBody struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, messageBody{Message: message})
}

// decodeJSON reads a single JSON object into dst. Unknown fields, trailing
// data and oversized bodies are rejected as validation failures.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return workflow.NewValidationError("body", "malformed request body")
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return workflow.NewValidationError("body", "request body must contain a single JSON object")
	}
	return nil
}

// statusFor maps a failure kind to an HTTP status.
func statusFor(kind workflow.Kind) int {
	switch kind {
	case workflow.KindValidation:
		return http.StatusUnprocessableEntity
	case workflow.KindDuplicateEmail:
		return http.StatusConflict
	case workflow.KindInvalidCredentials:
		return http.StatusUnauthorized
	case workflow.KindTokenNotFound, workflow.KindTokenExpired:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeFailure renders err. Only the public message and, for validation
// failures, the per-field reasons reach the client. The controller has
// already logged the detail.
func writeFailure(w http.ResponseWriter, err error) {
	kind := workflow.Classify(err)
	body := errorBody{Message: workflow.PublicMessage(kind)}

	var verr *workflow.ValidationError
	if errors.As(err, &verr) {
		body.Errors = verr.Fields
	}
	writeJSON(w, statusFor(kind), body)
}

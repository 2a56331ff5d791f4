// Package respond writes the JSON envelope shared by every endpoint.
package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Envelope is the uniform response body.
type Envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func JSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func Success(w http.ResponseWriter, status int, message string, data interface{}) {
	JSON(w, status, Envelope{Status: StatusSuccess, Message: message, Data: data})
}

func Error(w http.ResponseWriter, status int, message string, data interface{}) {
	JSON(w, status, Envelope{Status: StatusError, Message: message, Data: data})
}

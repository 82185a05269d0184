package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-gateway/pkg/executor"
	"github.com/ekaya-inc/ekaya-gateway/pkg/gateway"
	"github.com/ekaya-inc/ekaya-gateway/pkg/logging"
)

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// StatusFor maps a gateway rejection to its HTTP status.
func StatusFor(r gateway.Rejection) int {
	switch r.Category {
	case gateway.CategorySyntax:
		return http.StatusBadRequest
	case gateway.CategoryPolicy:
		return http.StatusUnprocessableEntity
	case gateway.CategoryUnavailable:
		return http.StatusServiceUnavailable
	case gateway.CategoryExecution:
		switch executor.Kind(r.Code) {
		case executor.Timeout:
			return http.StatusGatewayTimeout
		case executor.ConnectionFailure:
			return http.StatusServiceUnavailable
		default:
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}

// writeGatewayError is the single place gateway errors become HTTP
// responses.
func writeGatewayError(w http.ResponseWriter, err error, logger *zap.Logger) {
	rejection := gateway.Describe(err)
	status := StatusFor(rejection)
	if status == http.StatusInternalServerError {
		logger.Error("Unexpected gateway error", zap.String("error", logging.SanitizeError(err)))
	}
	if err := WriteJSON(w, status, rejection); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

package models

import (
	"fmt"
	"net/http"
	"time"

	"wallet-gate-api/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorCode represents standardized error codes
type ErrorCode string

const (
	// Gating denials
	ErrorCodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	ErrorCodeQuotaExceeded     ErrorCode = "QUOTA_EXCEEDED"

	// Validation errors
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeInvalidWallet  ErrorCode = "INVALID_WALLET_ADDRESS"
	ErrorCodeUnknownAction  ErrorCode = "UNKNOWN_ACTION"
	ErrorCodeMalformedJSON  ErrorCode = "MALFORMED_JSON"

	// Upstream errors
	ErrorCodeRPCUnavailable ErrorCode = "RPC_UNAVAILABLE"
	ErrorCodeRPCTimeout     ErrorCode = "RPC_TIMEOUT"

	// Internal errors
	ErrorCodeLedgerError   ErrorCode = "LEDGER_ERROR"
	ErrorCodeCacheError    ErrorCode = "CACHE_ERROR"
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorDetail represents detailed error information
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

// ErrorResponse represents the standardized error response format
type ErrorResponse struct {
	Error         ErrorDetail `json:"error"`
	Timestamp     time.Time   `json:"timestamp"`
	CorrelationID string      `json:"correlation_id,omitempty"`
}

// HTTPStatusCode returns the appropriate HTTP status code for each error type
func (e ErrorCode) HTTPStatusCode() int {
	switch e {
	case ErrorCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case ErrorCodeQuotaExceeded:
		return http.StatusForbidden
	case ErrorCodeInvalidRequest, ErrorCodeInvalidWallet, ErrorCodeUnknownAction, ErrorCodeMalformedJSON:
		return http.StatusBadRequest
	case ErrorCodeRPCUnavailable, ErrorCodeRPCTimeout:
		return http.StatusBadGateway
	case ErrorCodeLedgerError, ErrorCodeCacheError, ErrorCodeInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// NewErrorResponse creates a new error response with timestamp
func NewErrorResponse(code ErrorCode, message, details string) *ErrorResponse {
	return &ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
		Timestamp: time.Now().UTC(),
	}
}

// AppError represents an application error with context
type AppError struct {
	Code       ErrorCode
	Message    string
	Details    string
	Cause      error
	Context    map[string]interface{}
	StatusCode int
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: code.HTTPStatusCode(),
		Context:    make(map[string]interface{}),
	}
}

// NewAppErrorWithCause creates a new application error with underlying cause
func NewAppErrorWithCause(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Cause:      cause,
		StatusCode: code.HTTPStatusCode(),
		Context:    make(map[string]interface{}),
	}
}

// NewAppErrorWithDetails creates a new application error with details
func NewAppErrorWithDetails(code ErrorCode, message, details string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		Details:    details,
		StatusCode: code.HTTPStatusCode(),
		Context:    make(map[string]interface{}),
	}
}

// NewInvalidWalletError creates a client input error for a bad wallet address
func NewInvalidWalletError(address string) *AppError {
	return NewAppErrorWithDetails(
		ErrorCodeInvalidWallet,
		"Invalid wallet address format",
		"Wallet address: "+address,
	).WithContext("wallet_address", address)
}

// NewUnknownActionError creates a client input error for an unregistered action
func NewUnknownActionError(action string) *AppError {
	return NewAppErrorWithDetails(
		ErrorCodeUnknownAction,
		"Unknown rate-limited action",
		"Action: "+action,
	).WithContext("action", action)
}

// NewLedgerError creates a usage ledger error
func NewLedgerError(message string, cause error) *AppError {
	return NewAppErrorWithCause(ErrorCodeLedgerError, message, cause)
}

// HandleError logs an application error and sends the HTTP response
func HandleError(c *gin.Context, err error) {
	log := logger.GetLogger().WithContext(c.Request.Context())

	appErr, ok := err.(*AppError)
	if !ok {
		appErr = NewAppErrorWithCause(ErrorCodeInternalError, "Internal server error", err)
	}

	appErr.WithContext("method", c.Request.Method).
		WithContext("path", c.Request.URL.Path).
		WithContext("client_ip", c.ClientIP())

	logFields := []zap.Field{
		zap.String("error_code", string(appErr.Code)),
		zap.String("error_message", appErr.Message),
		zap.Any("error_context", appErr.Context),
	}
	if appErr.Cause != nil {
		logFields = append(logFields, zap.Error(appErr.Cause))
	}

	if appErr.StatusCode >= 500 {
		log.Error("Application error", logFields...)
	} else {
		log.Warn("Client error", logFields...)
	}

	response := NewErrorResponse(appErr.Code, appErr.Message, appErr.Details)
	response.CorrelationID = logger.GetCorrelationIDFromContext(c.Request.Context())

	c.JSON(appErr.StatusCode, response)
}

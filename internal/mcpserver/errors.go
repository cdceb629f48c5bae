// Package mcpserver exposes catalog matching over the Model Context
// Protocol.
package mcpserver

import (
	"context"
	"errors"
	"fmt"

	cmerrors "github.com/Aman-CERP/catalogmatch/internal/errors"
)

// Custom MCP error codes.
const (
	ErrCodeCatalogNotFound = -32001
	ErrCodeUpstream        = -32002
	ErrCodeTimeout         = -32003
	ErrCodePipeline        = -32010

	// Standard JSON-RPC error codes.
	ErrCodeInvalidParams = -32602
	ErrCodeInternalError = -32603
)

// MCPError is an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts pipeline errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var me *cmerrors.MatchError
	if errors.As(err, &me) {
		return mapMatchError(me)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

func mapMatchError(me *cmerrors.MatchError) *MCPError {
	message := me.Message
	if me.Suggestion != "" {
		message = fmt.Sprintf("%s %s", me.Message, me.Suggestion)
	}

	switch me.Category {
	case cmerrors.CategoryPipeline:
		return &MCPError{Code: ErrCodePipeline, Message: fmt.Sprintf("%s (%s)", message, me.Code)}
	case cmerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeUpstream, Message: message}
	case cmerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case cmerrors.CategoryIO:
		if me.Code == cmerrors.ErrCodeFileNotFound || me.Code == cmerrors.ErrCodeCorruptIndex {
			return &MCPError{Code: ErrCodeCatalogNotFound, Message: message}
		}
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}

package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	ErrNotFound          = errors.New("verification request not found")
	ErrLeaseLost         = errors.New("lease lost: row no longer owned by this worker")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbiddenPath     = errors.New("file path does not belong to user")
)

// Failure codes persisted in last_error.
const (
	CodeSignFailed     = "sign_failed"
	CodeDownloadFailed = "download_failed"
	CodeOCRFailed      = "ocr_failed"
	CodeOCRTimeout     = "ocr_timeout"
	CodeMaxAttempts    = "max_attempts"
	CodePanic          = "panic"
)

// StageError is a typed pipeline failure. Its Error() string is what gets
// persisted, so it must never carry stack traces or response bodies.
type StageError struct {
	Stage   string
	Code    string
	Message string
}

func (e *StageError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s:%s", e.Code, e.Message)
}

// NewStageError builds a StageError, trimming the message to a storable
// size. The result is always valid UTF-8.
func NewStageError(stage, code, message string) *StageError {
	const maxMessage = 200
	message = strings.ToValidUTF8(message, "?")
	if len(message) > maxMessage {
		cut := maxMessage
		for cut > 0 && !utf8.RuneStart(message[cut]) {
			cut--
		}
		message = message[:cut]
	}
	return &StageError{Stage: stage, Code: code, Message: message}
}

// OCRHTTPError is the typed failure for a non-2xx provider response.
func OCRHTTPError(status int) *StageError {
	return &StageError{Stage: StageOCR, Code: fmt.Sprintf("ocr_http_%d", status)}
}

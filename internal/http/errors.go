package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// StatusFor maps an application error to its HTTP status code.
func StatusFor(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeForbidden:
		return http.StatusForbidden
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeConflict,
		apperrors.ErrCodeForeignKey,
		apperrors.ErrCodeInvalidTransition,
		apperrors.ErrCodeJobAlreadyTaken,
		apperrors.ErrCodeRetryLimitExceeded:
		return http.StatusConflict
	case apperrors.ErrCodeIncompleteRound, apperrors.ErrCodeInsufficientJuryVotes:
		return http.StatusPreconditionFailed
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// writeServiceError renders err with the status StatusFor picks. Server errors are
// logged and their details withheld from the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		if logger != nil {
			logger.ErrorContext(r.Context(), "request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"error", err,
			)
		}
		code := string(apperrors.GetCode(err))
		if code == "" || code == string(apperrors.ErrCodeInternal) {
			code = "internal"
		}
		WriteError(w, ErrorParams{Code: status, ErrCode: code, Err: errors.New(http.StatusText(status))})
		return
	}

	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		message = appErr.Error()
	}
	WriteError(w, ErrorParams{
		Code:    status,
		ErrCode: string(apperrors.GetCode(err)),
		Err:     errors.New(message),
		Field:   apperrors.GetField(err),
	})
}

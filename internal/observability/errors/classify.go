// Package errors turns errors into short, stable class names for metric tags and alerts.
package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strings"

	apperrors "github.com/private-judge/judge-api/internal/errors"
)

// Classify returns a normalized error class name suitable for tagging metrics/logs.
// Application errors report their code; context errors report "timeout" or "canceled";
// anything else reports the innermost concrete type in snake_case-ish form.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}
	switch {
	case goerrors.Is(err, context.DeadlineExceeded):
		return string(apperrors.ErrCodeTimeout)
	case goerrors.Is(err, context.Canceled):
		return string(apperrors.ErrCodeCanceled)
	}

	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}

// ClassifyMessage classifies a worker-reported failure message, which carries no
// error type.
func ClassifyMessage(msg string) string {
	m := strings.ToLower(msg)
	switch {
	case m == "":
		return ""
	case strings.Contains(m, "timeout"), strings.Contains(m, "deadline exceeded"), strings.Contains(m, "timed out"):
		return "timeout"
	case strings.Contains(m, "rate limit"), strings.Contains(m, "429"):
		return "rate_limited"
	case strings.Contains(m, "validation"), strings.Contains(m, "invalid"):
		return "validation"
	}
	return "worker_error"
}

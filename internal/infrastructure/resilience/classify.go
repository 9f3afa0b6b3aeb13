package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/readmate-rag/internal/core/domain"
)

var (
	// Transient failures are retried and count against the breaker.
	Transient = ErrorClassification{Retryable: true, RecordFailure: true}
	// Permanent failures are not retried but still count against the breaker.
	Permanent = ErrorClassification{RecordFailure: true}
	// Rejected calls failed on their own merits: a bad request or a caller
	// that gave up. The collaborator is healthy.
	Rejected = ErrorClassification{}
)

// StatusError is a non-2xx reply from an HTTP collaborator.
type StatusError struct {
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	status := e.Status
	if status == "" {
		status = fmt.Sprintf("%d %s", e.Code, http.StatusText(e.Code))
	}
	if e.Body == "" {
		return "status " + status
	}
	return fmt.Sprintf("status %s: %s", status, e.Body)
}

// RetryableStatus reports HTTP statuses where another attempt may succeed.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	case http.StatusNotImplemented, http.StatusHTTPVersionNotSupported:
		return false
	}
	return code >= 500
}

// ClassifyStatus maps an HTTP status code onto a classification.
func ClassifyStatus(code int) ErrorClassification {
	if RetryableStatus(code) {
		return Transient
	}
	return Rejected
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// Classify covers what every collaborator shares: cancellation, an open
// breaker, HTTP status replies and network errors. Anything else is Permanent.
func Classify(err error) ErrorClassification {
	class, _ := classifyCommon(err)
	return class
}

// ClassifyWith consults specific first, for errors only one adapter can
// recognise, and falls back to Classify.
func ClassifyWith(specific func(error) (ErrorClassification, bool)) ErrorClassifier {
	return func(err error) ErrorClassification {
		if err == nil {
			return ErrorClassification{}
		}
		if class, ok := specific(err); ok {
			return class
		}
		return Classify(err)
	}
}

func classifyCommon(err error) (ErrorClassification, bool) {
	if err == nil {
		return ErrorClassification{}, true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Rejected, true
	}
	if IsCircuitOpen(err) {
		return Transient, true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return ClassifyStatus(statusErr.Code), true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient, true
	}
	return Permanent, false
}

// Temporary prefixes err with operation and tags it domain.ErrTemporary when
// classify says a later attempt could succeed.
func Temporary(operation string, err error, classify ErrorClassifier) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return fmt.Errorf("%s: %w", operation, err)
	}
	if classify == nil {
		classify = Classify
	}
	if classify(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

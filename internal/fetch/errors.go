package fetch

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"strings"

	"tdocflow/internal/util"
)

type ErrorType string

const (
	ErrorNotFound  ErrorType = "not_found"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
)

// ClassifyError tells retryable fetch failures from ones that will not go away.
// A missing agenda report usually means the meeting has not published one yet.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	if errors.Is(err, util.ErrBodyTooLarge) {
		return ErrorPermanent
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.Status == http.StatusNotFound, se.Status == http.StatusGone:
			return ErrorNotFound
		case se.Status == http.StatusTooManyRequests, se.Status >= 500:
			return ErrorTransient
		default:
			return ErrorPermanent
		}
	}
	if errors.Is(err, os.ErrNotExist) {
		return ErrorNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTransient
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrorTransient
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "timeout"), strings.Contains(e, "connection reset"), strings.Contains(e, "connection refused"), strings.Contains(e, "temporarily"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

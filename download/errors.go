package download

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrHTTPStatus       = errors.New("unexpected HTTP status code")
	ErrNotFound         = errors.New("resource not found")
	ErrForbidden        = errors.New("access forbidden")
	ErrServerError      = errors.New("server error")
	ErrInsufficientDisk = errors.New("not enough free disk space")
)

// TransferError is a network, disk or permission failure of one transfer.
type TransferError struct {
	Op  string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("download: %s: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

func checkStatusCode(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: %d", ErrNotFound, code)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %d", ErrForbidden, code)
	case code >= 500:
		return fmt.Errorf("%w: %d", ErrServerError, code)
	default:
		return fmt.Errorf("%w: %d", ErrHTTPStatus, code)
	}
}

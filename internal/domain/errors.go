package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrUpstream      = errors.New("upstream error")
	ErrInvalidOrder  = errors.New("invalid order parameters")
	ErrSigningFailed = errors.New("signature request failed")
	ErrContextDone   = errors.New("context cancelled")
	ErrLockHeld      = errors.New("lock held")

	ErrValidation            = errors.New("validation failed")
	ErrMarketUnavailable     = errors.New("market unavailable")
	ErrMarketClosed          = fmt.Errorf("%w: market is closed", ErrMarketUnavailable)
	ErrMarketInactive        = fmt.Errorf("%w: market not active", ErrMarketUnavailable)
	ErrWalletNotConnected    = errors.New("no wallet connected")
	ErrFundsUnknown          = errors.New("balance or allowance not yet available")
	ErrInsufficientBalance   = errors.New("insufficient usdc balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrApprovalPending       = errors.New("approval already pending")
	ErrNotCancellable        = errors.New("order cannot be cancelled")
	ErrTxReverted            = errors.New("transaction reverted")
)

// ValidationError lists every problem found in a form.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0]
	}
	return fmt.Sprintf("%d validation errors: %v", len(e.Problems), e.Problems)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// APIError is a non-2xx backend response with its decoded body.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    any
	Body       []byte
	Kind       error
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Body)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, msg)
}

// Unwrap exposes the sentinel matching the status code.
func (e *APIError) Unwrap() error { return e.Kind }

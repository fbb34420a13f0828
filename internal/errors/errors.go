// Package errors defines the domain error taxonomy shared by the wallet
// gateway and the provider adapters. Business failures carry a canonical
// code that adapters translate into their wire dialect; they are returned
// to providers in a 200 response body, never as transport failures.
package errors

import "fmt"

// DomainError is a terminal business outcome with a canonical code.
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var (
	ErrTokenNotFound = &DomainError{
		Code:    "TOKEN_NOT_FOUND",
		Message: "token not found or expired",
	}
	ErrUserNotFound = &DomainError{
		Code:    "USER_NOT_FOUND",
		Message: "user not found",
	}
	ErrUserBlocked = &DomainError{
		Code:    "USER_BLOCKED",
		Message: "user is blocked",
	}
	ErrInsufficientFunds = &DomainError{
		Code:    "INSUFFICIENT_FUNDS",
		Message: "insufficient wallet balance",
	}
	ErrTransactionNotFound = &DomainError{
		Code:    "TRANSACTION_NOT_FOUND",
		Message: "referenced transaction not found",
	}
	ErrAlreadyProcessed = &DomainError{
		Code:    "ALREADY_PROCESSED",
		Message: "transaction already processed",
	}
	ErrInvalidAmount = &DomainError{
		Code:    "INVALID_AMOUNT",
		Message: "invalid amount",
	}
	ErrValidation = &DomainError{
		Code:    "VALIDATION_ERROR",
		Message: "malformed request",
	}
	ErrInvalidSignature = &DomainError{
		Code:    "INVALID_SIGNATURE",
		Message: "callback signature verification failed",
	}
)

// TransientStoreError wraps a backing-store failure that did not produce a
// business outcome. The operation may be retried by the store-access layer.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("transient store error in %s: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

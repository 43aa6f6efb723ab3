package services

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrAccountNotFound      = errors.New("account not found")
	ErrForbidden            = errors.New("account does not belong to user")
	ErrInactiveAccount      = errors.New("account is not active")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrDailyLimitExceeded   = errors.New("daily transfer limit exceeded")
	ErrDestinationNotFound  = errors.New("destination account not found")
	ErrSelfTransfer         = errors.New("cannot transfer to the same account")
	ErrInvalidAccountType   = errors.New("invalid account type")
	ErrDuplicateAccountType = errors.New("account of this type already exists")
	ErrBelowMinimumDeposit  = errors.New("initial deposit below minimum")
	ErrDuplicateRequest     = errors.New("duplicate client request")
	ErrInvalidStatus        = errors.New("invalid account status")
	ErrInvalidLimit         = errors.New("invalid daily limit")
	ErrUserNotFound         = errors.New("user not found")
	ErrInvalidKycDecision   = errors.New("invalid kyc decision")
	ErrRejectionReason      = errors.New("rejection reason is required")
	ErrNoKycDocument        = errors.New("no kyc document submitted")
	ErrNumberSpaceExhausted = errors.New("could not allocate a unique account number")
)

// ErrDestinationInactive matches ErrInactiveAccount under errors.Is.
var ErrDestinationInactive = fmt.Errorf("destination %w", ErrInactiveAccount)

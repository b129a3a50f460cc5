package services

import "errors"

// Rejections surfaced to the user. Handlers map these to HTTP statuses;
// anything else coming out of the services is an internal failure.
var (
	ErrSymbolNotFound      = errors.New("symbol not found")
	ErrQuoteUnavailable    = errors.New("quote service unavailable")
	ErrInvalidQuantity     = errors.New("share quantity must be a whole number")
	ErrNonPositiveQuantity = errors.New("share quantity must be greater than zero")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInsufficientShares  = errors.New("insufficient shares")
)

package auth

import "errors"

var (
	// ErrAuthenticationRejected indicates a present but invalid API key or
	// bad login credentials. The request must stop, it never degrades to
	// anonymous. The message is identical for an unknown key id and a
	// wrong secret so the two cases cannot be told apart.
	ErrAuthenticationRejected = errors.New("authentication rejected")

	// ErrAuthorizationDenied indicates a valid identity whose permission
	// set lacks the dimension an operation requires.
	ErrAuthorizationDenied = errors.New("authorization denied")
)

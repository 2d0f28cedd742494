package services

import "errors"

// ErrInvalidCredentials is returned for both "no such account" and "wrong
// password" so responses cannot be used to enumerate accounts.
var ErrInvalidCredentials = errors.New("invalid credentials")

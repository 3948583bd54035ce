package service

import "errors"

// ErrValidation indicates malformed or out-of-contract input. Nothing is
// mutated when it is returned.
var ErrValidation = errors.New("invalid input")

// ErrForbidden indicates the acting user is not permitted to perform the
// operation on the target entity.
var ErrForbidden = errors.New("operation not permitted")

// ErrUnauthorized indicates the presented credential did not match.
var ErrUnauthorized = errors.New("invalid credentials")

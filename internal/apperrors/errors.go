package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	// Access token is missing, malformed, expired or signed with a wrong key.
	// Callers must map it to a uniform denial without detailing the cause.
	ErrTokenInvalid = errors.New("token invalid")

	// Any failure on the refresh path. Deliberately single valued: the refresh
	// endpoint must not let a caller distinguish "no cookie" from "bad cookie"
	// from "revoked".
	ErrRefreshDenied = errors.New("refresh denied")

	// Stored refresh token didn't match the presented one during rotation.
	// Expected under concurrent refreshes, deny the attempt and move on.
	ErrRotateMismatch = errors.New("refresh token rotate mismatch")
)

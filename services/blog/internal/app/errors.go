package app

import "errors"

var (
	ErrTitleAuthorRequired = errors.New("Title and authorId are required")
	ErrAuthorNotFound      = errors.New("author not found")
	ErrEmailRequired       = errors.New("email is required")

	ErrPostNotFound = errors.New("Post not found")
	ErrUserNotFound = errors.New("User not found")

	ErrCreateForbidden     = errors.New("Unauthorized to create posts for another user")
	ErrEditForbidden       = errors.New("Unauthorized to edit this post")
	ErrDeleteForbidden     = errors.New("Unauthorized to delete this post")
	ErrUserEditForbidden   = errors.New("Unauthorized to edit this user")
	ErrUserDeleteForbidden = errors.New("Unauthorized to delete this user")

	ErrEmailAlreadyExists = errors.New("User with this email already exists")

	// ErrUnauthorized means a session was required but absent, expired or revoked.
	ErrUnauthorized = errors.New("unauthorized")
)

// Kind classifies errors for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindNotFound
	KindForbidden
	KindConflict
	KindUnauthorized
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrTitleAuthorRequired, KindInvalidInput},
	{ErrAuthorNotFound, KindInvalidInput},
	{ErrEmailRequired, KindInvalidInput},
	{ErrPostNotFound, KindNotFound},
	{ErrUserNotFound, KindNotFound},
	{ErrCreateForbidden, KindForbidden},
	{ErrEditForbidden, KindForbidden},
	{ErrDeleteForbidden, KindForbidden},
	{ErrUserEditForbidden, KindForbidden},
	{ErrUserDeleteForbidden, KindForbidden},
	{ErrEmailAlreadyExists, KindConflict},
	{ErrUnauthorized, KindUnauthorized},
}

// KindOf returns the class of err. Unknown errors, including deadline
// expiry, are internal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

package app

import (
	"context"
	"strings"
)

// Identity is the caller acting on a request. Verified is set only when the
// user id came from a valid session token.
type Identity struct {
	UserID   string
	Verified bool
}

// Anonymous reports whether no verified session backs the identity.
func (id Identity) Anonymous() bool {
	return !id.Verified || id.UserID == ""
}

// Authenticate resolves a bearer token. An empty token yields an anonymous
// identity; a token that is invalid or names a deleted user is ErrUnauthorized.
func (a *App) Authenticate(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, nil
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	userID, ok, err := a.sessions.GetUserIDByToken(ctx, token)
	if err != nil {
		return Identity{}, storeErr("resolve session", err)
	}
	if !ok {
		return Identity{}, ErrUnauthorized
	}
	_, exists, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return Identity{}, storeErr("load session user", err)
	}
	if !exists {
		return Identity{}, ErrUnauthorized
	}
	return Identity{UserID: userID, Verified: true}, nil
}

// requireSession rejects anonymous callers unless supplied authors are trusted.
func (a *App) requireSession(caller Identity) error {
	if caller.Anonymous() && !a.trustSuppliedAuthor {
		return ErrUnauthorized
	}
	return nil
}

// actingUser decides whose ownership a mutation is checked against.
// A verified caller always acts as themselves and may not claim another
// author. An anonymous caller acts as the supplied author in trust mode;
// an empty result means no ownership check applies.
func (a *App) actingUser(caller Identity, supplied string, forbidden error) (string, error) {
	if !caller.Anonymous() {
		if supplied != "" && supplied != caller.UserID {
			return "", forbidden
		}
		return caller.UserID, nil
	}
	if !a.trustSuppliedAuthor {
		return "", ErrUnauthorized
	}
	return supplied, nil
}

package app

import (
	"context"
	"strings"

	"inkpost/internal/util"
	"inkpost/pkg/domain"
)

// SignIn upserts the user identified by email and issues a session token.
// name is only used when the user is created.
func (a *App) SignIn(ctx context.Context, email string, name *string) (domain.User, string, error) {
	email = normalizeEmail(email)
	if email == "" {
		return domain.User{}, "", ErrEmailRequired
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			name = nil
		} else {
			name = &trimmed
		}
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	now := a.timestamp()
	user, err := a.store.UpsertUserByEmail(ctx, domain.User{
		ID:        util.NewID(),
		Email:     email,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.User{}, "", storeErr("upsert user", err)
	}
	token, err := a.sessions.NewSession(ctx, user.ID)
	if err != nil {
		return domain.User{}, "", storeErr("issue session", err)
	}
	return user, token, nil
}

// SignOut revokes token. Unknown tokens are ignored.
func (a *App) SignOut(ctx context.Context, token string) error {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	if err := a.sessions.DeleteSession(ctx, token); err != nil {
		return storeErr("delete session", err)
	}
	return nil
}

// Me returns the verified caller's user record.
func (a *App) Me(ctx context.Context, caller Identity) (domain.User, error) {
	if caller.Anonymous() {
		return domain.User{}, ErrUnauthorized
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	user, ok, err := a.store.GetUserByID(ctx, caller.UserID)
	if err != nil {
		return domain.User{}, storeErr("get user", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthorized
	}
	return user, nil
}

package app

import (
	"context"
	"errors"
	"strings"

	"inkpost/pkg/domain"
	"inkpost/pkg/store"
)

// UpdateUserInput carries the optional fields of a profile edit.
// An empty email and a nil name are left unchanged; ClearName removes the name.
type UpdateUserInput struct {
	Email     *string
	Name      *string
	ClearName bool
}

// GetUser returns the user and their posts, newest first.
func (a *App) GetUser(ctx context.Context, id string) (domain.UserWithPosts, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	user, ok, err := a.store.GetUserByID(ctx, id)
	if err != nil {
		return domain.UserWithPosts{}, storeErr("get user", err)
	}
	if !ok {
		return domain.UserWithPosts{}, ErrUserNotFound
	}
	posts, err := a.store.ListPostsByAuthor(ctx, id)
	if err != nil {
		return domain.UserWithPosts{}, storeErr("list user posts", err)
	}
	return domain.UserWithPosts{User: user, Posts: posts}, nil
}

// UpdateUser edits a profile. A new email is checked against every other
// user first; the unique index catches anything that races past the check.
func (a *App) UpdateUser(ctx context.Context, caller Identity, id string, in UpdateUserInput) (domain.User, error) {
	if err := a.authorizeSelf(caller, id, ErrUserEditForbidden); err != nil {
		return domain.User{}, err
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	current, ok, err := a.store.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, storeErr("get user", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}

	changes := domain.UserChanges{Name: in.Name, ClearName: in.ClearName}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if email != "" && email != current.Email {
			other, taken, err := a.store.GetUserByEmail(ctx, email)
			if err != nil {
				return domain.User{}, storeErr("check email", err)
			}
			if taken && other.ID != id {
				return domain.User{}, ErrEmailAlreadyExists
			}
			changes.Email = &email
		}
	}

	updated, err := a.store.UpdateUser(ctx, id, changes, a.timestamp())
	switch {
	case errors.Is(err, store.ErrDuplicateEmail):
		return domain.User{}, ErrEmailAlreadyExists
	case errors.Is(err, store.ErrNotFound):
		return domain.User{}, ErrUserNotFound
	case err != nil:
		return domain.User{}, storeErr("update user", err)
	}
	return updated, nil
}

// DeleteUser removes a user together with every post they wrote.
func (a *App) DeleteUser(ctx context.Context, caller Identity, id string) error {
	if err := a.authorizeSelf(caller, id, ErrUserDeleteForbidden); err != nil {
		return err
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	if _, ok, err := a.store.GetUserByID(ctx, id); err != nil {
		return storeErr("get user", err)
	} else if !ok {
		return ErrUserNotFound
	}
	if err := a.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return storeErr("delete user", err)
	}
	return nil
}

// authorizeSelf allows only the user themselves to change their account.
// Anonymous callers pass in trust mode.
func (a *App) authorizeSelf(caller Identity, targetID string, forbidden error) error {
	if err := a.requireSession(caller); err != nil {
		return err
	}
	if !caller.Anonymous() && caller.UserID != targetID {
		return forbidden
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

package store

import (
	"context"
	"errors"
	"time"

	"inkpost/pkg/domain"
)

var (
	// ErrNotFound is returned by mutations that target a missing row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateEmail is returned when a write would break users.email uniqueness.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrAuthorMissing is returned when a post references a user that does not exist.
	ErrAuthorMissing = errors.New("author does not exist")
)

// Store defines persistence operations for users and posts.
type Store interface {
	// users
	UpsertUserByEmail(ctx context.Context, user domain.User) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	UpdateUser(ctx context.Context, id string, changes domain.UserChanges, at time.Time) (domain.User, error)
	DeleteUser(ctx context.Context, id string) error

	// posts
	CreatePost(ctx context.Context, post domain.Post) (domain.Post, error)
	GetPost(ctx context.Context, id string) (domain.Post, bool, error)
	ListPosts(ctx context.Context, filter domain.PostFilter) ([]domain.Post, error)
	ListPostsByAuthor(ctx context.Context, authorID string) ([]domain.PostSummary, error)
	UpdatePost(ctx context.Context, id string, changes domain.PostChanges, at time.Time) (domain.Post, error)
	DeletePost(ctx context.Context, id string) error
	DeletePostsByAuthors(ctx context.Context, authorIDs ...string) (int64, error)
}

// SessionStore persists session tokens.
type SessionStore interface {
	NewSession(ctx context.Context, userID string) (string, error)
	GetUserIDByToken(ctx context.Context, token string) (string, bool, error)
	DeleteSession(ctx context.Context, token string) error
}

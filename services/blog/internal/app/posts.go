package app

import (
	"context"
	"errors"

	"inkpost/internal/util"
	"inkpost/pkg/domain"
	"inkpost/pkg/store"
)

// CreatePostInput is a validated create request.
type CreatePostInput struct {
	Title     string
	Content   *string
	Published *bool
	AuthorID  string
}

// UpdatePostInput carries the optional fields of an edit. AuthorID is only
// used for the ownership check and is never written.
type UpdatePostInput struct {
	Title     *string
	Content   *string
	Published *bool
	AuthorID  string
}

// ListPosts returns posts matching filter, newest first.
func (a *App) ListPosts(ctx context.Context, filter domain.PostFilter) ([]domain.Post, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	posts, err := a.store.ListPosts(ctx, filter)
	if err != nil {
		return nil, storeErr("list posts", err)
	}
	return posts, nil
}

// GetPost returns one post with its author.
func (a *App) GetPost(ctx context.Context, id string) (domain.Post, error) {
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	post, ok, err := a.store.GetPost(ctx, id)
	if err != nil {
		return domain.Post{}, storeErr("get post", err)
	}
	if !ok {
		return domain.Post{}, ErrPostNotFound
	}
	return post, nil
}

// CreatePost validates input, checks the caller may write as the author and
// stores a new draft or published post.
func (a *App) CreatePost(ctx context.Context, caller Identity, in CreatePostInput) (domain.Post, error) {
	if in.Title == "" || in.AuthorID == "" {
		return domain.Post{}, ErrTitleAuthorRequired
	}
	if err := a.requireSession(caller); err != nil {
		return domain.Post{}, err
	}
	if !caller.Anonymous() && caller.UserID != in.AuthorID {
		return domain.Post{}, ErrCreateForbidden
	}

	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	if _, ok, err := a.store.GetUserByID(ctx, in.AuthorID); err != nil {
		return domain.Post{}, storeErr("check author", err)
	} else if !ok {
		return domain.Post{}, ErrAuthorNotFound
	}

	now := a.timestamp()
	post := domain.Post{
		ID:        util.NewID(),
		Title:     in.Title,
		AuthorID:  in.AuthorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Content != nil {
		post.Content = *in.Content
	}
	if in.Published != nil {
		post.Published = *in.Published
	}
	created, err := a.store.CreatePost(ctx, post)
	if errors.Is(err, store.ErrAuthorMissing) {
		return domain.Post{}, ErrAuthorNotFound
	}
	if err != nil {
		return domain.Post{}, storeErr("create post", err)
	}
	return created, nil
}

// UpdatePost applies an edit after the ownership check. An empty title is
// ignored; content and published are applied whenever present.
func (a *App) UpdatePost(ctx context.Context, caller Identity, id string, in UpdatePostInput) (domain.Post, error) {
	if err := a.requireSession(caller); err != nil {
		return domain.Post{}, err
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	existing, ok, err := a.store.GetPost(ctx, id)
	if err != nil {
		return domain.Post{}, storeErr("get post", err)
	}
	if !ok {
		return domain.Post{}, ErrPostNotFound
	}
	actor, err := a.actingUser(caller, in.AuthorID, ErrEditForbidden)
	if err != nil {
		return domain.Post{}, err
	}
	if actor != "" && actor != existing.AuthorID {
		return domain.Post{}, ErrEditForbidden
	}

	changes := domain.PostChanges{Content: in.Content, Published: in.Published}
	if in.Title != nil && *in.Title != "" {
		changes.Title = in.Title
	}
	updated, err := a.store.UpdatePost(ctx, id, changes, a.timestamp())
	if errors.Is(err, store.ErrNotFound) {
		return domain.Post{}, ErrPostNotFound
	}
	if err != nil {
		return domain.Post{}, storeErr("update post", err)
	}
	return updated, nil
}

// DeletePost removes a post after the ownership check. suppliedAuthor is the
// optional authorId the caller sent.
func (a *App) DeletePost(ctx context.Context, caller Identity, id, suppliedAuthor string) error {
	if err := a.requireSession(caller); err != nil {
		return err
	}
	ctx, cancel := a.withTimeout(ctx)
	defer cancel()
	existing, ok, err := a.store.GetPost(ctx, id)
	if err != nil {
		return storeErr("get post", err)
	}
	if !ok {
		return ErrPostNotFound
	}
	actor, err := a.actingUser(caller, suppliedAuthor, ErrDeleteForbidden)
	if err != nil {
		return err
	}
	if actor != "" && actor != existing.AuthorID {
		return ErrDeleteForbidden
	}
	if err := a.store.DeletePost(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrPostNotFound
		}
		return storeErr("delete post", err)
	}
	return nil
}

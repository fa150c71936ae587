package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

// ExcerptLength is the number of runes kept by Excerpt before the ellipsis.
const ExcerptLength = 150

type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      *string   `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Post struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Content   string        `json:"content"`
	Published bool          `json:"published"`
	AuthorID  string        `json:"authorId"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Author    AuthorSummary `json:"author"`
}

// AuthorSummary is the reduced author view embedded in post responses.
type AuthorSummary struct {
	ID    string  `json:"id"`
	Email string  `json:"email"`
	Name  *string `json:"name"`
}

// PostSummary is the reduced post view embedded in user responses.
type PostSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Published bool      `json:"published"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type UserWithPosts struct {
	User
	Posts []PostSummary `json:"posts"`
}

// PostChanges lists the mutable post fields; nil means unchanged.
type PostChanges struct {
	Title     *string
	Content   *string
	Published *bool
}

// UserChanges lists the mutable user fields; nil means unchanged.
// ClearName sets the optional name to null and wins over Name.
type UserChanges struct {
	Email     *string
	Name      *string
	ClearName bool
}

// PostFilter narrows ListPosts. Zero value matches every post.
type PostFilter struct {
	AuthorID  string
	Published *bool
	Query     string
}

// Matches applies the filter to a single post.
func (f PostFilter) Matches(p Post) bool {
	if f.AuthorID != "" && p.AuthorID != f.AuthorID {
		return false
	}
	if f.Published != nil && p.Published != *f.Published {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(p.Title), q) || strings.Contains(strings.ToLower(p.Content), q)
}

// Summary drops the author projection.
func (p Post) Summary() PostSummary {
	return PostSummary{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		Published: p.Published,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// Summary returns the author projection of a user.
func (u User) Summary() AuthorSummary {
	return AuthorSummary{ID: u.ID, Email: u.Email, Name: u.Name}
}

// Excerpt truncates content to max runes and appends "..." when anything was cut.
func Excerpt(content string, max int) string {
	if max <= 0 || utf8.RuneCountInString(content) <= max {
		return content
	}
	runes := []rune(content)
	return string(runes[:max]) + "..."
}

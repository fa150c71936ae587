package server

import (
	"encoding/json"

	"inkpost/pkg/domain"
)

// optionalString tells an absent field (Set false) from an explicit null
// (Set true, Value nil).
type optionalString struct {
	Set   bool
	Value *string
}

func (o *optionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if string(data) == "null" {
		o.Value = nil
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	o.Value = &v
	return nil
}

type createPostRequest struct {
	Title     string  `json:"title"`
	Content   *string `json:"content"`
	Published *bool   `json:"published"`
	AuthorID  string  `json:"authorId"`
}

type updatePostRequest struct {
	Title     *string `json:"title"`
	Content   *string `json:"content"`
	Published *bool   `json:"published"`
	AuthorID  *string `json:"authorId"`
}

type updateUserRequest struct {
	Email *string        `json:"email"`
	Name  optionalString `json:"name"`
}

type signInRequest struct {
	Email string  `json:"email"`
	Name  *string `json:"name"`
}

type signInResponse struct {
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type postListItem struct {
	domain.Post
	Excerpt string `json:"excerpt"`
}

type messageResponse struct {
	Message string `json:"message"`
}

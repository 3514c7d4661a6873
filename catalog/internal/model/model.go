package model

import (
	"strings"
	"time"
)

type Author struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Books []Book `json:"books" db:"-"`
}

type Book struct {
	ID              int64  `json:"id" db:"id"`
	Title           string `json:"title" db:"title"`
	PublicationYear int    `json:"publication_year" db:"publication_year"`
	AuthorID        int64  `json:"author" db:"author_id"`
}

// BookRequest is the writable representation of a book.
type BookRequest struct {
	Title           string `json:"title" validate:"required,max=255"`
	PublicationYear *int   `json:"publication_year" validate:"required,notfuture"`
	Author          *int64 `json:"author" validate:"required"`
}

// Normalize trims the title so that a blank one fails "required".
func (r *BookRequest) Normalize() {
	r.Title = strings.TrimSpace(r.Title)
}

// BookPatch carries the fields of a partial update.
type BookPatch struct {
	Title           *string `json:"title"`
	PublicationYear *int    `json:"publication_year"`
	Author          *int64  `json:"author"`
}

// Apply merges p over b and returns the full request to validate.
func (p BookPatch) Apply(b Book) BookRequest {
	req := BookRequest{
		Title:           b.Title,
		PublicationYear: &b.PublicationYear,
		Author:          &b.AuthorID,
	}
	if p.Title != nil {
		req.Title = *p.Title
	}
	if p.PublicationYear != nil {
		req.PublicationYear = p.PublicationYear
	}
	if p.Author != nil {
		req.Author = p.Author
	}
	return req
}

func (r BookRequest) Book(id int64) Book {
	b := Book{ID: id, Title: r.Title}
	if r.PublicationYear != nil {
		b.PublicationYear = *r.PublicationYear
	}
	if r.Author != nil {
		b.AuthorID = *r.Author
	}
	return b
}

type AuthorRequest struct {
	Name string `json:"name" validate:"required,max=255"`
}

func (r *AuthorRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
}

// BookFilter drives the book list query. Nil fields are not filtered on.
type BookFilter struct {
	Title           *string
	AuthorName      *string
	PublicationYear *int
	Search          string
	Ordering        []string
}

const (
	EventBookCreated = "book.created"
	EventBookUpdated = "book.updated"
	EventBookDeleted = "book.deleted"
)

type BookEvent struct {
	Type      string    `json:"type"`
	BookID    int64     `json:"book_id"`
	Title     string    `json:"title"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
}

package model

import (
	"strings"
	"time"
	"unicode"

	"github.com/Astemirdum/bookshelf-service/pkg/auth"
)

type Post struct {
	ID            int64     `db:"id"`
	Title         string    `db:"title"`
	Content       string    `db:"content"`
	PublishedDate time.Time `db:"published_date"`
	Author        string    `db:"author"`
	Tags          []Tag     `db:"-"`
}

type Tag struct {
	ID   int64  `db:"id"`
	Name string `db:"name"`
	Slug string `db:"slug"`
}

type Comment struct {
	ID        int64     `db:"id"`
	PostID    int64     `db:"post_id"`
	Author    string    `db:"author"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Edited reports whether the comment changed after it was posted.
func (c Comment) Edited() bool {
	return c.UpdatedAt.Sub(c.CreatedAt) > time.Second
}

type PostDetail struct {
	Post     Post
	Comments []Comment
}

// PostFilter narrows the post list. Query matches title, content or an exact
// tag name; TagSlug limits the list to one tag.
type PostFilter struct {
	TagSlug string
	Query   string
}

type PostForm struct {
	Title   string `form:"title" validate:"required,max=200"`
	Content string `form:"content" validate:"required"`
	Tags    string `form:"tags" validate:"max=500"`
}

func (p Post) Form() PostForm {
	names := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		names = append(names, t.Name)
	}
	return PostForm{Title: p.Title, Content: p.Content, Tags: strings.Join(names, ", ")}
}

type CommentForm struct {
	Content string `form:"content" validate:"required,max=5000"`
}

type RegisterForm struct {
	Username  string `form:"username" validate:"required,max=150"`
	Email     string `form:"email" validate:"required,email"`
	Password1 string `form:"password1" validate:"required,min=8"`
	Password2 string `form:"password2" validate:"required,eqfield=Password1"`
}

type LoginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
	Next     string `form:"next"`
}

type ProfileForm struct {
	Email string `form:"email" validate:"omitempty,email"`
}

// Session is what the blog keeps per logged-in browser.
type Session struct {
	Token     string         `json:"token"`
	Principal auth.Principal `json:"principal"`
}

const maxTagLen = 50

// ParseTags splits a comma separated tag list into tags, dropping blanks and
// duplicate slugs.
func ParseTags(s string) []Tag {
	var tags []Tag
	seen := make(map[string]struct{})
	for _, name := range strings.Split(s, ",") {
		name = strings.Join(strings.Fields(name), " ")
		if len([]rune(name)) > maxTagLen {
			name = string([]rune(name)[:maxTagLen])
		}
		slug := Slugify(name)
		if slug == "" {
			continue
		}
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		tags = append(tags, Tag{Name: name, Slug: slug})
	}
	return tags
}

// Slugify lowercases s, keeps letters, digits, underscores and hyphens, and
// collapses whitespace and hyphen runs into single hyphens.
func Slugify(s string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
		case r == '-' || unicode.IsSpace(r):
			pendingDash = true
		}
	}
	return b.String()
}

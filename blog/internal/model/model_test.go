package model_test

import (
	"testing"
	"time"

	"github.com/Astemirdum/bookshelf-service/blog/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{in: "Go", want: "go"},
		{in: "Machine Learning", want: "machine-learning"},
		{in: "  spaced   out  ", want: "spaced-out"},
		{in: "C++ & Rust!", want: "c-rust"},
		{in: "snake_case", want: "snake_case"},
		{in: "--dashes--", want: "dashes"},
		{in: "Ünïcode Tag", want: "ünïcode-tag"},
		{in: "!!!", want: ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, model.Slugify(tt.in), "input %q", tt.in)
	}
}

func TestParseTags(t *testing.T) {
	t.Parallel()
	tags := model.ParseTags("Go, go ,  Web   Dev,, ,!!")
	require.Equal(t, []model.Tag{
		{Name: "Go", Slug: "go"},
		{Name: "Web Dev", Slug: "web-dev"},
	}, tags)
	require.Empty(t, model.ParseTags(""))
}

func TestPost_Form(t *testing.T) {
	t.Parallel()
	p := model.Post{Title: "T", Content: "C", Tags: []model.Tag{{Name: "go"}, {Name: "web"}}}
	require.Equal(t, model.PostForm{Title: "T", Content: "C", Tags: "go, web"}, p.Form())
}

func TestComment_Edited(t *testing.T) {
	t.Parallel()
	now := time.Now()
	require.False(t, model.Comment{CreatedAt: now, UpdatedAt: now}.Edited())
	require.True(t, model.Comment{CreatedAt: now, UpdatedAt: now.Add(time.Minute)}.Edited())
}

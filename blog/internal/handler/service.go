package handler

import (
	"context"

	"github.com/Astemirdum/bookshelf-service/blog/internal/model"
	"github.com/Astemirdum/bookshelf-service/blog/internal/service"
	"github.com/Astemirdum/bookshelf-service/blog/internal/session"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/Astemirdum/bookshelf-service/pkg/identity"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type BlogService interface {
	ListPosts(ctx context.Context, f model.PostFilter) ([]model.Post, error)
	PostsByTag(ctx context.Context, slug string) (model.Tag, []model.Post, error)
	PostDetail(ctx context.Context, id int64) (model.PostDetail, error)
	GetPost(ctx context.Context, id int64) (model.Post, error)
	EditablePost(ctx context.Context, p auth.Principal, id int64) (model.Post, error)
	CreatePost(ctx context.Context, p auth.Principal, form model.PostForm) (model.Post, error)
	UpdatePost(ctx context.Context, p auth.Principal, id int64, form model.PostForm) (model.Post, error)
	DeletePost(ctx context.Context, p auth.Principal, id int64) error
	AddComment(ctx context.Context, p auth.Principal, postID int64, form model.CommentForm) (model.Comment, error)
	EditableComment(ctx context.Context, p auth.Principal, id int64) (model.Comment, error)
	UpdateComment(ctx context.Context, p auth.Principal, id int64, form model.CommentForm) (model.Comment, error)
	DeleteComment(ctx context.Context, p auth.Principal, id int64) (model.Comment, error)
}

type IdentityClient interface {
	Login(ctx context.Context, username, password string) (string, auth.Principal, error)
	Register(ctx context.Context, req identity.RegisterRequest) (identity.User, error)
	Me(ctx context.Context, token string) (identity.User, error)
	UpdateMe(ctx context.Context, token string, req identity.UpdateProfileRequest) (identity.User, error)
}

type SessionStore interface {
	Create(ctx context.Context, sess model.Session) (string, error)
	Get(ctx context.Context, sid string) (model.Session, error)
	Update(ctx context.Context, sid string, sess model.Session) error
	Delete(ctx context.Context, sid string) error
}

var (
	_ BlogService    = (*service.Service)(nil)
	_ IdentityClient = (*identity.Client)(nil)
	_ SessionStore   = (*session.Store)(nil)
)

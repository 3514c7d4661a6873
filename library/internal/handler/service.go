package handler

import (
	"context"

	"github.com/Astemirdum/bookshelf-service/library/internal/model"
	"github.com/Astemirdum/bookshelf-service/library/internal/service"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/Astemirdum/bookshelf-service/pkg/identity"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type LibraryService interface {
	ListBooks(ctx context.Context) ([]model.Book, error)
	SearchBooks(ctx context.Context, query string) ([]model.Book, error)
	GetBook(ctx context.Context, id int64) (model.Book, error)
	CreateBook(ctx context.Context, form model.BookForm) (model.Book, error)
	UpdateBook(ctx context.Context, id int64, form model.BookForm) (model.Book, error)
	DeleteBook(ctx context.Context, id int64) error
	GetLibrary(ctx context.Context, id int64) (model.Library, error)
}

type IdentityClient interface {
	Login(ctx context.Context, username, password string) (string, auth.Principal, error)
	Register(ctx context.Context, req identity.RegisterRequest) (identity.User, error)
}

var (
	_ LibraryService = (*service.Service)(nil)
	_ IdentityClient = (*identity.Client)(nil)
)

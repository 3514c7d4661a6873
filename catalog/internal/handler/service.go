package handler

import (
	"context"

	"github.com/Astemirdum/bookshelf-service/catalog/internal/model"
	"github.com/Astemirdum/bookshelf-service/catalog/internal/service"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type CatalogService interface {
	ListBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error)
	GetBook(ctx context.Context, id int64) (model.Book, error)
	CreateBook(ctx context.Context, username string, req model.BookRequest) (model.Book, error)
	UpdateBook(ctx context.Context, username string, id int64, req model.BookRequest) (model.Book, error)
	DeleteBook(ctx context.Context, username string, id int64) error
	ListAuthors(ctx context.Context) ([]model.Author, error)
	GetAuthor(ctx context.Context, id int64) (model.Author, error)
	CreateAuthor(ctx context.Context, req model.AuthorRequest) (model.Author, error)
}

var _ CatalogService = (*service.Service)(nil)

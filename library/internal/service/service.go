package service

import (
	"context"

	"github.com/Astemirdum/bookshelf-service/library/internal/errs"
	"github.com/Astemirdum/bookshelf-service/library/internal/model"
	libraryRepo "github.com/Astemirdum/bookshelf-service/library/internal/repository"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Service struct {
	log  *zap.Logger
	repo libraryRepo.Repository
}

func NewService(repo libraryRepo.Repository, log *zap.Logger) *Service {
	return &Service{
		log:  log,
		repo: repo,
	}
}

func (s *Service) ListBooks(ctx context.Context) ([]model.Book, error) {
	return s.repo.ListBooks(ctx)
}

func (s *Service) SearchBooks(ctx context.Context, query string) ([]model.Book, error) {
	return s.repo.SearchBooks(ctx, query)
}

func (s *Service) GetBook(ctx context.Context, id int64) (model.Book, error) {
	return s.repo.GetBook(ctx, id)
}

func (s *Service) CreateBook(ctx context.Context, form model.BookForm) (model.Book, error) {
	book, err := s.repo.CreateBook(ctx, form)
	if err != nil {
		return model.Book{}, err
	}
	s.log.Debug("book added", zap.Int64("id", book.ID))
	return book, nil
}

func (s *Service) UpdateBook(ctx context.Context, id int64, form model.BookForm) (model.Book, error) {
	return s.repo.UpdateBook(ctx, id, form)
}

func (s *Service) DeleteBook(ctx context.Context, id int64) error {
	return s.repo.DeleteBook(ctx, id)
}

// GetLibrary loads a library with its books and librarian. A library without
// a librarian has a nil Librarian.
func (s *Service) GetLibrary(ctx context.Context, id int64) (model.Library, error) {
	var (
		lib       model.Library
		books     []model.Book
		librarian *model.Librarian
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lib, err = s.repo.GetLibrary(gCtx, id)
		return err
	})
	g.Go(func() error {
		var err error
		books, err = s.repo.LibraryBooks(gCtx, id)
		return err
	})
	g.Go(func() error {
		l, err := s.repo.GetLibrarian(gCtx, id)
		if errors.Is(err, errs.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		librarian = &l
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.Library{}, err
	}
	lib.Books = books
	lib.Librarian = librarian
	return lib, nil
}

package service

import (
	"context"
	"strconv"
	"time"

	"github.com/Astemirdum/bookshelf-service/catalog/internal/model"
	catalogRepo "github.com/Astemirdum/bookshelf-service/catalog/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Publisher interface {
	Publish(key string, v any) error
}

type Service struct {
	log    *zap.Logger
	repo   catalogRepo.Repository
	events Publisher
	now    func() time.Time
}

func NewService(repo catalogRepo.Repository, events Publisher, log *zap.Logger) *Service {
	return &Service{
		log:    log,
		repo:   repo,
		events: events,
		now:    time.Now,
	}
}

func (s *Service) publish(typ string, b model.Book, username string) {
	if s.events == nil {
		return
	}
	ev := model.BookEvent{
		Type:      typ,
		BookID:    b.ID,
		Title:     b.Title,
		Username:  username,
		Timestamp: s.now().UTC(),
	}
	if err := s.events.Publish(strconv.FormatInt(b.ID, 10), ev); err != nil {
		s.log.Warn("publish book event", zap.String("type", typ), zap.Int64("book_id", b.ID), zap.Error(err))
	}
}

func (s *Service) ListBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error) {
	books, err := s.repo.ListBooks(ctx, f)
	if err != nil {
		return nil, err
	}
	if books == nil {
		books = []model.Book{}
	}
	return books, nil
}

func (s *Service) GetBook(ctx context.Context, id int64) (model.Book, error) {
	return s.repo.GetBook(ctx, id)
}

func (s *Service) CreateBook(ctx context.Context, username string, req model.BookRequest) (model.Book, error) {
	book, err := s.repo.CreateBook(ctx, req.Book(0))
	if err != nil {
		return model.Book{}, err
	}
	s.log.Debug("book created", zap.Int64("id", book.ID), zap.String("by", username))
	s.publish(model.EventBookCreated, book, username)
	return book, nil
}

func (s *Service) UpdateBook(ctx context.Context, username string, id int64, req model.BookRequest) (model.Book, error) {
	book, err := s.repo.UpdateBook(ctx, req.Book(id))
	if err != nil {
		return model.Book{}, err
	}
	s.publish(model.EventBookUpdated, book, username)
	return book, nil
}

func (s *Service) DeleteBook(ctx context.Context, username string, id int64) error {
	book, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteBook(ctx, id); err != nil {
		return err
	}
	s.publish(model.EventBookDeleted, book, username)
	return nil
}

func (s *Service) ListAuthors(ctx context.Context) ([]model.Author, error) {
	authors, err := s.repo.ListAuthors(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(authors))
	for _, a := range authors {
		ids = append(ids, a.ID)
	}
	books, err := s.repo.BooksByAuthors(ctx, ids)
	if err != nil {
		return nil, err
	}
	byAuthor := make(map[int64][]model.Book, len(authors))
	for _, b := range books {
		byAuthor[b.AuthorID] = append(byAuthor[b.AuthorID], b)
	}
	out := make([]model.Author, 0, len(authors))
	for _, a := range authors {
		a.Books = byAuthor[a.ID]
		if a.Books == nil {
			a.Books = []model.Book{}
		}
		out = append(out, a)
	}
	return out, nil
}

// GetAuthor loads the author and its books concurrently.
func (s *Service) GetAuthor(ctx context.Context, id int64) (model.Author, error) {
	var (
		author model.Author
		books  []model.Book
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		author, err = s.repo.GetAuthor(gCtx, id)
		return err
	})
	g.Go(func() error {
		var err error
		books, err = s.repo.BooksByAuthors(gCtx, []int64{id})
		return err
	})
	if err := g.Wait(); err != nil {
		return model.Author{}, err
	}
	author.Books = books
	if author.Books == nil {
		author.Books = []model.Book{}
	}
	return author, nil
}

func (s *Service) CreateAuthor(ctx context.Context, req model.AuthorRequest) (model.Author, error) {
	return s.repo.CreateAuthor(ctx, req.Name)
}

package service_test

import (
	"context"
	"testing"

	"github.com/Astemirdum/bookshelf-service/catalog/internal/errs"
	"github.com/Astemirdum/bookshelf-service/catalog/internal/model"
	repo_mocks "github.com/Astemirdum/bookshelf-service/catalog/internal/repository/mocks"
	"github.com/Astemirdum/bookshelf-service/catalog/internal/service"
	"github.com/golang/mock/gomock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recorder struct {
	keys   []string
	events []model.BookEvent
	err    error
}

func (r *recorder) Publish(key string, v any) error {
	r.keys = append(r.keys, key)
	r.events = append(r.events, v.(model.BookEvent))
	return r.err
}

func ptr[T any](v T) *T { return &v }

func TestService_CreateBookPublishes(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	repo := repo_mocks.NewMockRepository(c)
	events := &recorder{err: errors.New("broker down")}
	svc := service.NewService(repo, events, zap.NewNop())

	repo.EXPECT().
		CreateBook(gomock.Any(), model.Book{Title: "New Book", PublicationYear: 2019, AuthorID: 1}).
		Return(model.Book{ID: 2, Title: "New Book", PublicationYear: 2019, AuthorID: 1}, nil)

	book, err := svc.CreateBook(context.Background(), "testuser", model.BookRequest{
		Title:           "New Book",
		PublicationYear: ptr(2019),
		Author:          ptr(int64(1)),
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), book.ID)
	require.Equal(t, []string{"2"}, events.keys)
	require.Equal(t, model.EventBookCreated, events.events[0].Type)
	require.Equal(t, "testuser", events.events[0].Username)
}

func TestService_DeleteBook(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	repo := repo_mocks.NewMockRepository(c)
	events := &recorder{}
	svc := service.NewService(repo, events, zap.NewNop())

	gomock.InOrder(
		repo.EXPECT().GetBook(gomock.Any(), int64(1)).Return(model.Book{ID: 1, Title: "Test Book"}, nil),
		repo.EXPECT().DeleteBook(gomock.Any(), int64(1)).Return(nil),
		repo.EXPECT().GetBook(gomock.Any(), int64(1)).Return(model.Book{}, errs.ErrNotFound),
	)

	require.NoError(t, svc.DeleteBook(context.Background(), "testuser", 1))
	_, err := svc.GetBook(context.Background(), 1)
	require.ErrorIs(t, err, errs.ErrNotFound)
	require.Len(t, events.events, 1)
	require.Equal(t, model.EventBookDeleted, events.events[0].Type)

	repo.EXPECT().GetBook(gomock.Any(), int64(9)).Return(model.Book{}, errs.ErrNotFound)
	require.ErrorIs(t, svc.DeleteBook(context.Background(), "testuser", 9), errs.ErrNotFound)
	require.Len(t, events.events, 1)
}

func TestService_Authors(t *testing.T) {
	t.Parallel()
	c := gomock.NewController(t)
	defer c.Finish()
	repo := repo_mocks.NewMockRepository(c)
	svc := service.NewService(repo, nil, zap.NewNop())

	repo.EXPECT().ListAuthors(gomock.Any()).Return([]model.Author{{ID: 1, Name: "Test Author"}, {ID: 2, Name: "Nobody"}}, nil)
	repo.EXPECT().BooksByAuthors(gomock.Any(), []int64{1, 2}).Return([]model.Book{
		{ID: 1, Title: "Test Book", PublicationYear: 2020, AuthorID: 1},
		{ID: 3, Title: "Second", PublicationYear: 2021, AuthorID: 1},
	}, nil)

	authors, err := svc.ListAuthors(context.Background())
	require.NoError(t, err)
	require.Len(t, authors, 2)
	require.Len(t, authors[0].Books, 2)
	require.Equal(t, []model.Book{}, authors[1].Books)

	repo.EXPECT().GetAuthor(gomock.Any(), int64(1)).Return(model.Author{ID: 1, Name: "Test Author"}, nil)
	repo.EXPECT().BooksByAuthors(gomock.Any(), []int64{1}).Return([]model.Book{{ID: 1, Title: "Test Book", AuthorID: 1}}, nil)
	author, err := svc.GetAuthor(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "Test Author", author.Name)
	require.Len(t, author.Books, 1)

	repo.EXPECT().GetAuthor(gomock.Any(), int64(5)).Return(model.Author{}, errs.ErrNotFound)
	repo.EXPECT().BooksByAuthors(gomock.Any(), []int64{5}).Return(nil, nil).AnyTimes()
	_, err = svc.GetAuthor(context.Background(), 5)
	require.ErrorIs(t, err, errs.ErrNotFound)
}

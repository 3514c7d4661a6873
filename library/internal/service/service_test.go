package service_test

import (
	"context"
	"testing"

	"github.com/Astemirdum/bookshelf-service/library/internal/errs"
	"github.com/Astemirdum/bookshelf-service/library/internal/model"
	repo_mocks "github.com/Astemirdum/bookshelf-service/library/internal/repository/mocks"
	"github.com/Astemirdum/bookshelf-service/library/internal/service"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestService_GetLibrary(t *testing.T) {
	t.Parallel()
	books := []model.Book{{ID: 1, Title: "Dune", AuthorName: "Frank Herbert"}}

	tests := []struct {
		name         string
		libErr       error
		librarian    model.Librarian
		librarianErr error
		want         model.Library
		wantErr      error
	}{
		{
			name:      "with librarian",
			librarian: model.Librarian{ID: 4, Name: "Ann", LibraryID: 1},
			want: model.Library{
				ID: 1, Name: "Central", Books: books,
				Librarian: &model.Librarian{ID: 4, Name: "Ann", LibraryID: 1},
			},
		},
		{
			name:         "without librarian",
			librarianErr: errs.ErrNotFound,
			want:         model.Library{ID: 1, Name: "Central", Books: books},
		},
		{
			name:         "missing library",
			libErr:       errs.ErrNotFound,
			librarianErr: errs.ErrNotFound,
			wantErr:      errs.ErrNotFound,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := gomock.NewController(t)
			defer c.Finish()
			repo := repo_mocks.NewMockRepository(c)
			svc := service.NewService(repo, zap.NewNop())

			lib := model.Library{}
			if tt.libErr == nil {
				lib = model.Library{ID: 1, Name: "Central"}
			}
			repo.EXPECT().GetLibrary(gomock.Any(), int64(1)).Return(lib, tt.libErr)
			repo.EXPECT().LibraryBooks(gomock.Any(), int64(1)).Return(books, nil).AnyTimes()
			repo.EXPECT().GetLibrarian(gomock.Any(), int64(1)).Return(tt.librarian, tt.librarianErr).AnyTimes()

			got, err := svc.GetLibrary(context.Background(), 1)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

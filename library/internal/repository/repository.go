package repository

import (
	"context"
	"strings"

	"github.com/Astemirdum/bookshelf-service/library/internal/errs"
	"github.com/Astemirdum/bookshelf-service/library/internal/model"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:generate go run github.com/golang/mock/mockgen -source=repository.go -destination=mocks/mock.go

type Repository interface {
	ListBooks(ctx context.Context) ([]model.Book, error)
	SearchBooks(ctx context.Context, query string) ([]model.Book, error)
	GetBook(ctx context.Context, id int64) (model.Book, error)
	CreateBook(ctx context.Context, form model.BookForm) (model.Book, error)
	UpdateBook(ctx context.Context, id int64, form model.BookForm) (model.Book, error)
	DeleteBook(ctx context.Context, id int64) error
	GetLibrary(ctx context.Context, id int64) (model.Library, error)
	LibraryBooks(ctx context.Context, libraryID int64) ([]model.Book, error)
	GetLibrarian(ctx context.Context, libraryID int64) (model.Librarian, error)
}

type repository struct {
	db  *pgxpool.Pool
	log *zap.Logger
}

func NewRepository(db *pgxpool.Pool, log *zap.Logger) (*repository, error) {
	return &repository{
		db:  db,
		log: log.Named("repo"),
	}, nil
}

const (
	authorsTableName      = `authors`
	booksTableName        = `books`
	librariesTableName    = `libraries`
	libraryBooksTableName = `library_books`
	librariansTableName   = `librarians`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func selectBooks() sq.SelectBuilder {
	return qb.Select("b.id", "b.title", "b.publication_year", "b.author_id", "a.name as author_name").
		From(booksTableName + " b").
		Join(authorsTableName + " a on a.id = b.author_id")
}

func (r *repository) collectBooks(ctx context.Context, q sq.SelectBuilder) ([]model.Book, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("books query", zap.String("q", query), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	books, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Book])
	if err != nil {
		return nil, errors.Wrap(err, "pgx.CollectRows")
	}
	return books, nil
}

func (r *repository) ListBooks(ctx context.Context) ([]model.Book, error) {
	return r.collectBooks(ctx, selectBooks().OrderBy("b.title", "b.id"))
}

func (r *repository) SearchBooks(ctx context.Context, query string) ([]model.Book, error) {
	pattern := "%" + likeEscaper.Replace(query) + "%"
	return r.collectBooks(ctx, selectBooks().
		Where(sq.Or{
			sq.ILike{"b.title": pattern},
			sq.ILike{"a.name": pattern},
		}).
		OrderBy("b.title", "b.id"))
}

func (r *repository) LibraryBooks(ctx context.Context, libraryID int64) ([]model.Book, error) {
	return r.collectBooks(ctx, selectBooks().
		Join(libraryBooksTableName+" lb on lb.book_id = b.id").
		Where(sq.Eq{"lb.library_id": libraryID}).
		OrderBy("b.title", "b.id"))
}

func (r *repository) GetBook(ctx context.Context, id int64) (model.Book, error) {
	books, err := r.collectBooks(ctx, selectBooks().Where(sq.Eq{"b.id": id}))
	if err != nil {
		return model.Book{}, err
	}
	if len(books) == 0 {
		return model.Book{}, errs.ErrNotFound
	}
	return books[0], nil
}

// authorID returns the id of the first author called name, creating one if needed.
func authorID(ctx context.Context, tx pgx.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `select id from authors where name = $1 order by id limit 1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, err
	}
	err = tx.QueryRow(ctx, `insert into authors (name) values ($1) returning id`, name).Scan(&id)
	return id, err
}

func (r *repository) CreateBook(ctx context.Context, form model.BookForm) (model.Book, error) {
	var id int64
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		aid, err := authorID(ctx, tx, form.Author)
		if err != nil {
			return err
		}
		query, args, err := qb.Insert(booksTableName).
			Columns("title", "publication_year", "author_id").
			Values(form.Title, form.PublicationYear, aid).
			Suffix("returning id").
			ToSql()
		if err != nil {
			return err
		}
		return tx.QueryRow(ctx, query, args...).Scan(&id)
	})
	if err != nil {
		return model.Book{}, err
	}
	return r.GetBook(ctx, id)
}

func (r *repository) UpdateBook(ctx context.Context, id int64, form model.BookForm) (model.Book, error) {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		aid, err := authorID(ctx, tx, form.Author)
		if err != nil {
			return err
		}
		query, args, err := qb.Update(booksTableName).
			Set("title", form.Title).
			Set("publication_year", form.PublicationYear).
			Set("author_id", aid).
			Where(sq.Eq{"id": id}).
			ToSql()
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return errs.ErrNotFound
		}
		return nil
	})
	if err != nil {
		return model.Book{}, err
	}
	return r.GetBook(ctx, id)
}

func (r *repository) DeleteBook(ctx context.Context, id int64) error {
	query, args, err := qb.Delete(booksTableName).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *repository) GetLibrary(ctx context.Context, id int64) (model.Library, error) {
	query, args, err := qb.Select("id", "name").
		From(librariesTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Library{}, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Library{}, err
	}
	defer rows.Close()

	lib, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Library])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Library{}, errs.ErrNotFound
		}
		return model.Library{}, err
	}
	return lib, nil
}

func (r *repository) GetLibrarian(ctx context.Context, libraryID int64) (model.Librarian, error) {
	query, args, err := qb.Select("id", "name", "library_id").
		From(librariansTableName).
		Where(sq.Eq{"library_id": libraryID}).
		ToSql()
	if err != nil {
		return model.Librarian{}, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Librarian{}, err
	}
	defer rows.Close()

	librarian, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Librarian])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Librarian{}, errs.ErrNotFound
		}
		return model.Librarian{}, err
	}
	return librarian, nil
}

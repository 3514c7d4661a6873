package repository

import (
	"context"
	"strings"

	"github.com/Astemirdum/bookshelf-service/catalog/internal/errs"
	"github.com/Astemirdum/bookshelf-service/catalog/internal/model"
	"github.com/Astemirdum/bookshelf-service/pkg/postgres"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:generate go run github.com/golang/mock/mockgen -source=repository.go -destination=mocks/mock.go

type Repository interface {
	ListBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error)
	GetBook(ctx context.Context, id int64) (model.Book, error)
	CreateBook(ctx context.Context, b model.Book) (model.Book, error)
	UpdateBook(ctx context.Context, b model.Book) (model.Book, error)
	DeleteBook(ctx context.Context, id int64) error
	ListAuthors(ctx context.Context) ([]model.Author, error)
	GetAuthor(ctx context.Context, id int64) (model.Author, error)
	CreateAuthor(ctx context.Context, name string) (model.Author, error)
	BooksByAuthors(ctx context.Context, authorIDs []int64) ([]model.Book, error)
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
	authorsTableName = `authors`
	booksTableName   = `books`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var orderingFields = map[string]string{
	"title":            "b.title",
	"publication_year": "b.publication_year",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// searchTerms splits a search string on whitespace and commas.
func searchTerms(search string) []string {
	return strings.FieldsFunc(search, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

// listBooksQuery builds the book list query: exact filters, a case-insensitive
// search in which every term must match the title or the author name, then ordering.
func listBooksQuery(f model.BookFilter) sq.SelectBuilder {
	q := qb.Select("b.id", "b.title", "b.publication_year", "b.author_id").
		From(booksTableName + " b").
		Join(authorsTableName + " a on a.id = b.author_id")

	if f.Title != nil {
		q = q.Where(sq.Eq{"b.title": *f.Title})
	}
	if f.AuthorName != nil {
		q = q.Where(sq.Eq{"a.name": *f.AuthorName})
	}
	if f.PublicationYear != nil {
		q = q.Where(sq.Eq{"b.publication_year": *f.PublicationYear})
	}
	for _, term := range searchTerms(f.Search) {
		pattern := "%" + likeEscaper.Replace(term) + "%"
		q = q.Where(sq.Or{
			sq.ILike{"b.title": pattern},
			sq.ILike{"a.name": pattern},
		})
	}

	orderBy := make([]string, 0, len(f.Ordering)+1)
	for _, field := range f.Ordering {
		dir := "asc"
		if strings.HasPrefix(field, "-") {
			dir = "desc"
			field = strings.TrimPrefix(field, "-")
		}
		if col, ok := orderingFields[field]; ok {
			orderBy = append(orderBy, col+" "+dir)
		}
	}
	return q.OrderBy(append(orderBy, "b.id")...)
}

func (r *repository) ListBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error) {
	query, args, err := listBooksQuery(f).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("ListBooks", zap.String("q", query), zap.Any("args", args), zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	books, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Book])
	if err != nil {
		return nil, errors.Wrap(err, "pgx.CollectRows")
	}
	return books, nil
}

func (r *repository) GetBook(ctx context.Context, id int64) (model.Book, error) {
	query, args, err := qb.Select("id", "title", "publication_year", "author_id").
		From(booksTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Book{}, err
	}
	defer rows.Close()

	book, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Book])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Book{}, errs.ErrNotFound
		}
		return model.Book{}, err
	}
	return book, nil
}

func (r *repository) CreateBook(ctx context.Context, b model.Book) (model.Book, error) {
	query, args, err := qb.Insert(booksTableName).
		Columns("title", "publication_year", "author_id").
		Values(b.Title, b.PublicationYear, b.AuthorID).
		Suffix("returning id").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	if err := r.db.QueryRow(ctx, query, args...).Scan(&b.ID); err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return model.Book{}, errs.ErrInvalidAuthor
		}
		return model.Book{}, err
	}
	return b, nil
}

func (r *repository) UpdateBook(ctx context.Context, b model.Book) (model.Book, error) {
	query, args, err := qb.Update(booksTableName).
		Set("title", b.Title).
		Set("publication_year", b.PublicationYear).
		Set("author_id", b.AuthorID).
		Where(sq.Eq{"id": b.ID}).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return model.Book{}, errs.ErrInvalidAuthor
		}
		return model.Book{}, err
	}
	if tag.RowsAffected() == 0 {
		return model.Book{}, errs.ErrNotFound
	}
	return b, nil
}

func (r *repository) DeleteBook(ctx context.Context, id int64) error {
	query, args, err := qb.Delete(booksTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
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

func (r *repository) ListAuthors(ctx context.Context) ([]model.Author, error) {
	query, args, err := qb.Select("id", "name").
		From(authorsTableName).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	authors, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[model.Author])
	if err != nil {
		return nil, errors.Wrap(err, "pgx.CollectRows")
	}
	return authors, nil
}

func (r *repository) GetAuthor(ctx context.Context, id int64) (model.Author, error) {
	query, args, err := qb.Select("id", "name").
		From(authorsTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Author{}, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Author{}, err
	}
	defer rows.Close()

	author, err := pgx.CollectOneRow(rows, pgx.RowToStructByNameLax[model.Author])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Author{}, errs.ErrNotFound
		}
		return model.Author{}, err
	}
	return author, nil
}

func (r *repository) CreateAuthor(ctx context.Context, name string) (model.Author, error) {
	query, args, err := qb.Insert(authorsTableName).
		Columns("name").
		Values(name).
		Suffix("returning id").
		ToSql()
	if err != nil {
		return model.Author{}, err
	}
	author := model.Author{Name: name, Books: []model.Book{}}
	if err := r.db.QueryRow(ctx, query, args...).Scan(&author.ID); err != nil {
		return model.Author{}, err
	}
	return author, nil
}

func (r *repository) BooksByAuthors(ctx context.Context, authorIDs []int64) ([]model.Book, error) {
	if len(authorIDs) == 0 {
		return nil, nil
	}
	query, args, err := qb.Select("id", "title", "publication_year", "author_id").
		From(booksTableName).
		Where(sq.Eq{"author_id": authorIDs}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Book])
	if err != nil {
		return nil, errors.Wrap(err, "pgx.CollectRows")
	}
	return books, nil
}

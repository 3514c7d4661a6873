package repository

import (
	"context"
	"strings"

	"github.com/Astemirdum/bookshelf-service/blog/internal/errs"
	"github.com/Astemirdum/bookshelf-service/blog/internal/model"
	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:generate go run github.com/golang/mock/mockgen -source=repository.go -destination=mocks/mock.go

type Repository interface {
	ListPosts(ctx context.Context, f model.PostFilter) ([]model.Post, error)
	GetPost(ctx context.Context, id int64) (model.Post, error)
	CreatePost(ctx context.Context, p model.Post) (model.Post, error)
	UpdatePost(ctx context.Context, p model.Post) (model.Post, error)
	DeletePost(ctx context.Context, id int64) error
	GetTag(ctx context.Context, slug string) (model.Tag, error)
	ListComments(ctx context.Context, postID int64) ([]model.Comment, error)
	GetComment(ctx context.Context, id int64) (model.Comment, error)
	CreateComment(ctx context.Context, c model.Comment) (model.Comment, error)
	UpdateComment(ctx context.Context, id int64, content string) (model.Comment, error)
	DeleteComment(ctx context.Context, id int64) error
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
	postsTableName    = `posts`
	tagsTableName     = `tags`
	postTagsTableName = `post_tags`
	commentsTableName = `comments`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

var (
	postColumns    = []string{"p.id", "p.title", "p.content", "p.published_date", "p.author"}
	commentColumns = []string{"id", "post_id", "author", "content", "created_at", "updated_at"}
)

const (
	hasTagSlug = `exists (select 1 from post_tags pt join tags t on t.id = pt.tag_id where pt.post_id = p.id and t.slug = ?)`
	hasTagName = `exists (select 1 from post_tags pt join tags t on t.id = pt.tag_id where pt.post_id = p.id and lower(t.name) = lower(?))`
)

// listPostsQuery selects posts newest first. The tag filter matches by slug;
// the search matches title or content as a substring, or a tag name exactly.
func listPostsQuery(f model.PostFilter) sq.SelectBuilder {
	q := qb.Select(postColumns...).From(postsTableName + " p")
	if f.TagSlug != "" {
		q = q.Where(sq.Expr(hasTagSlug, f.TagSlug))
	}
	if query := strings.TrimSpace(f.Query); query != "" {
		pattern := "%" + likeEscaper.Replace(query) + "%"
		q = q.Where(sq.Or{
			sq.ILike{"p.title": pattern},
			sq.ILike{"p.content": pattern},
			sq.Expr(hasTagName, query),
		})
	}
	return q.OrderBy("p.published_date desc", "p.id desc")
}

func (r *repository) ListPosts(ctx context.Context, f model.PostFilter) ([]model.Post, error) {
	query, args, err := listPostsQuery(f).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.log.Error("ListPosts", zap.String("q", query), zap.Any("args", args), zap.Error(err))
		return nil, err
	}
	posts, err := pgx.CollectRows(rows, pgx.RowToStructByNameLax[model.Post])
	if err != nil {
		return nil, errors.Wrap(err, "pgx.CollectRows")
	}
	if err := r.attachTags(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

type postTag struct {
	PostID int64  `db:"post_id"`
	ID     int64  `db:"id"`
	Name   string `db:"name"`
	Slug   string `db:"slug"`
}

func (r *repository) attachTags(ctx context.Context, posts []model.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	query, args, err := qb.Select("pt.post_id", "t.id", "t.name", "t.slug").
		From(postTagsTableName + " pt").
		Join(tagsTableName + " t on t.id = pt.tag_id").
		Where(sq.Eq{"pt.post_id": ids}).
		OrderBy("t.name").
		ToSql()
	if err != nil {
		return err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	links, err := pgx.CollectRows(rows, pgx.RowToStructByName[postTag])
	if err != nil {
		return errors.Wrap(err, "pgx.CollectRows")
	}
	byPost := make(map[int64][]model.Tag, len(posts))
	for _, l := range links {
		byPost[l.PostID] = append(byPost[l.PostID], model.Tag{ID: l.ID, Name: l.Name, Slug: l.Slug})
	}
	for i := range posts {
		posts[i].Tags = byPost[posts[i].ID]
	}
	return nil
}

func (r *repository) GetPost(ctx context.Context, id int64) (model.Post, error) {
	query, args, err := qb.Select(postColumns...).
		From(postsTableName + " p").
		Where(sq.Eq{"p.id": id}).
		ToSql()
	if err != nil {
		return model.Post{}, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Post{}, err
	}
	post, err := pgx.CollectOneRow(rows, pgx.RowToStructByNameLax[model.Post])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Post{}, errs.ErrNotFound
		}
		return model.Post{}, err
	}
	posts := []model.Post{post}
	if err := r.attachTags(ctx, posts); err != nil {
		return model.Post{}, err
	}
	return posts[0], nil
}

// setTags replaces the tags of a post, creating missing tags by slug.
func setTags(ctx context.Context, tx pgx.Tx, postID int64, tags []model.Tag) error {
	if _, err := tx.Exec(ctx, `delete from post_tags where post_id = $1`, postID); err != nil {
		return err
	}
	for _, t := range tags {
		var tagID int64
		err := tx.QueryRow(ctx,
			`insert into tags (name, slug) values (@name, @slug)
on conflict (slug) do update set slug = excluded.slug
returning id`,
			pgx.NamedArgs{"name": t.Name, "slug": t.Slug},
		).Scan(&tagID)
		if err != nil {
			return errors.Wrapf(err, "tag %s", t.Slug)
		}
		if _, err := tx.Exec(ctx,
			`insert into post_tags (post_id, tag_id) values ($1, $2) on conflict do nothing`,
			postID, tagID,
		); err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) CreatePost(ctx context.Context, p model.Post) (model.Post, error) {
	var id int64
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query, args, err := qb.Insert(postsTableName).
			Columns("title", "content", "author").
			Values(p.Title, p.Content, p.Author).
			Suffix("returning id").
			ToSql()
		if err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, query, args...).Scan(&id); err != nil {
			return err
		}
		return setTags(ctx, tx, id, p.Tags)
	})
	if err != nil {
		return model.Post{}, err
	}
	return r.GetPost(ctx, id)
}

func (r *repository) UpdatePost(ctx context.Context, p model.Post) (model.Post, error) {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		query, args, err := qb.Update(postsTableName).
			Set("title", p.Title).
			Set("content", p.Content).
			Where(sq.Eq{"id": p.ID}).
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
		return setTags(ctx, tx, p.ID, p.Tags)
	})
	if err != nil {
		return model.Post{}, err
	}
	return r.GetPost(ctx, p.ID)
}

func (r *repository) delete(ctx context.Context, table string, id int64) error {
	query, args, err := qb.Delete(table).Where(sq.Eq{"id": id}).ToSql()
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

func (r *repository) DeletePost(ctx context.Context, id int64) error {
	return r.delete(ctx, postsTableName, id)
}

func (r *repository) GetTag(ctx context.Context, slug string) (model.Tag, error) {
	query, args, err := qb.Select("id", "name", "slug").
		From(tagsTableName).
		Where(sq.Eq{"slug": slug}).
		ToSql()
	if err != nil {
		return model.Tag{}, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Tag{}, err
	}
	tag, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Tag])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Tag{}, errs.ErrNotFound
		}
		return model.Tag{}, err
	}
	return tag, nil
}

func (r *repository) collectComments(ctx context.Context, q sq.SelectBuilder) ([]model.Comment, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	comments, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Comment])
	if err != nil {
		return nil, errors.Wrap(err, "pgx.CollectRows")
	}
	return comments, nil
}

func (r *repository) ListComments(ctx context.Context, postID int64) ([]model.Comment, error) {
	return r.collectComments(ctx, qb.Select(commentColumns...).
		From(commentsTableName).
		Where(sq.Eq{"post_id": postID}).
		OrderBy("created_at", "id"))
}

func (r *repository) GetComment(ctx context.Context, id int64) (model.Comment, error) {
	comments, err := r.collectComments(ctx, qb.Select(commentColumns...).
		From(commentsTableName).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return model.Comment{}, err
	}
	if len(comments) == 0 {
		return model.Comment{}, errs.ErrNotFound
	}
	return comments[0], nil
}

func (r *repository) CreateComment(ctx context.Context, c model.Comment) (model.Comment, error) {
	query, args, err := qb.Insert(commentsTableName).
		Columns("post_id", "author", "content").
		Values(c.PostID, c.Author, c.Content).
		Suffix("returning " + strings.Join(commentColumns, ", ")).
		ToSql()
	if err != nil {
		return model.Comment{}, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Comment{}, err
	}
	comment, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Comment])
	if err != nil {
		return model.Comment{}, err
	}
	return comment, nil
}

func (r *repository) UpdateComment(ctx context.Context, id int64, content string) (model.Comment, error) {
	query, args, err := qb.Update(commentsTableName).
		Set("content", content).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).
		Suffix("returning " + strings.Join(commentColumns, ", ")).
		ToSql()
	if err != nil {
		return model.Comment{}, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return model.Comment{}, err
	}
	comment, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Comment])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Comment{}, errs.ErrNotFound
		}
		return model.Comment{}, err
	}
	return comment, nil
}

func (r *repository) DeleteComment(ctx context.Context, id int64) error {
	return r.delete(ctx, commentsTableName, id)
}

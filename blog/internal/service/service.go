package service

import (
	"context"

	"github.com/Astemirdum/bookshelf-service/blog/internal/errs"
	"github.com/Astemirdum/bookshelf-service/blog/internal/model"
	blogRepo "github.com/Astemirdum/bookshelf-service/blog/internal/repository"
	"github.com/Astemirdum/bookshelf-service/pkg/auth"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Service struct {
	log  *zap.Logger
	repo blogRepo.Repository
}

func NewService(repo blogRepo.Repository, log *zap.Logger) *Service {
	return &Service{
		log:  log,
		repo: repo,
	}
}

func (s *Service) ListPosts(ctx context.Context, f model.PostFilter) ([]model.Post, error) {
	return s.repo.ListPosts(ctx, f)
}

func (s *Service) PostsByTag(ctx context.Context, slug string) (model.Tag, []model.Post, error) {
	tag, err := s.repo.GetTag(ctx, slug)
	if err != nil {
		return model.Tag{}, nil, err
	}
	posts, err := s.repo.ListPosts(ctx, model.PostFilter{TagSlug: slug})
	if err != nil {
		return model.Tag{}, nil, err
	}
	return tag, posts, nil
}

func (s *Service) PostDetail(ctx context.Context, id int64) (model.PostDetail, error) {
	var detail model.PostDetail
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		post, err := s.repo.GetPost(gCtx, id)
		if err != nil {
			return err
		}
		detail.Post = post
		return nil
	})
	g.Go(func() error {
		comments, err := s.repo.ListComments(gCtx, id)
		if err != nil {
			return errors.Wrap(err, "ListComments")
		}
		detail.Comments = comments
		return nil
	})
	if err := g.Wait(); err != nil {
		return model.PostDetail{}, err
	}
	return detail, nil
}

func (s *Service) GetPost(ctx context.Context, id int64) (model.Post, error) {
	return s.repo.GetPost(ctx, id)
}

// EditablePost returns the post when p is its author.
func (s *Service) EditablePost(ctx context.Context, p auth.Principal, id int64) (model.Post, error) {
	post, err := s.repo.GetPost(ctx, id)
	if err != nil {
		return model.Post{}, err
	}
	if !auth.IsOwner(p, post.Author) {
		return model.Post{}, errs.ErrForbidden
	}
	return post, nil
}

func (s *Service) CreatePost(ctx context.Context, p auth.Principal, form model.PostForm) (model.Post, error) {
	post, err := s.repo.CreatePost(ctx, model.Post{
		Title:   form.Title,
		Content: form.Content,
		Author:  p.Username,
		Tags:    model.ParseTags(form.Tags),
	})
	if err != nil {
		return model.Post{}, err
	}
	s.log.Debug("post created", zap.Int64("id", post.ID), zap.String("by", p.Username))
	return post, nil
}

func (s *Service) UpdatePost(ctx context.Context, p auth.Principal, id int64, form model.PostForm) (model.Post, error) {
	post, err := s.EditablePost(ctx, p, id)
	if err != nil {
		return model.Post{}, err
	}
	post.Title = form.Title
	post.Content = form.Content
	post.Tags = model.ParseTags(form.Tags)
	return s.repo.UpdatePost(ctx, post)
}

func (s *Service) DeletePost(ctx context.Context, p auth.Principal, id int64) error {
	if _, err := s.EditablePost(ctx, p, id); err != nil {
		return err
	}
	return s.repo.DeletePost(ctx, id)
}

func (s *Service) AddComment(ctx context.Context, p auth.Principal, postID int64, form model.CommentForm) (model.Comment, error) {
	if _, err := s.repo.GetPost(ctx, postID); err != nil {
		return model.Comment{}, err
	}
	return s.repo.CreateComment(ctx, model.Comment{
		PostID:  postID,
		Author:  p.Username,
		Content: form.Content,
	})
}

// EditableComment returns the comment when p is its author.
func (s *Service) EditableComment(ctx context.Context, p auth.Principal, id int64) (model.Comment, error) {
	comment, err := s.repo.GetComment(ctx, id)
	if err != nil {
		return model.Comment{}, err
	}
	if !auth.IsOwner(p, comment.Author) {
		return model.Comment{}, errs.ErrForbidden
	}
	return comment, nil
}

func (s *Service) UpdateComment(ctx context.Context, p auth.Principal, id int64, form model.CommentForm) (model.Comment, error) {
	if _, err := s.EditableComment(ctx, p, id); err != nil {
		return model.Comment{}, err
	}
	return s.repo.UpdateComment(ctx, id, form.Content)
}

// DeleteComment removes the comment and returns it so callers can find its post.
func (s *Service) DeleteComment(ctx context.Context, p auth.Principal, id int64) (model.Comment, error) {
	comment, err := s.EditableComment(ctx, p, id)
	if err != nil {
		return model.Comment{}, err
	}
	if err := s.repo.DeleteComment(ctx, id); err != nil {
		return model.Comment{}, err
	}
	return comment, nil
}

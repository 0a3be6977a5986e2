package article

import (
	"time"
)

// NamespaceDefault is the default schema all articles live in.
const NamespaceDefault = "websmansa"

// Publication states of an Article.
const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// Status is the publication state of an Article.
type Status string

// Article is a piece of editorial content served by the public API.
type Article struct {
	Body      string
	Deleted   bool
	ID        uint64
	Slug      string
	Status    Status
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate performs semantic checks on Article.
func (a *Article) Validate() error {
	if a.Title == "" {
		return wrapError(ErrInvalidArticle, "title must be set")
	}

	if a.Slug == "" {
		return wrapError(ErrInvalidArticle, "slug must be set")
	}

	if a.Status != StatusDraft && a.Status != StatusPublished {
		return wrapError(ErrInvalidArticle, "status '%s' not supported", a.Status)
	}

	return nil
}

// List is a collection of Articles.
type List []*Article

// QueryOptions are used to narrow down article queries.
type QueryOptions struct {
	Deleted  *bool
	IDs      []uint64
	Limit    int
	Slugs    []string
	Statuses []Status
}

// Service for article interactions.
type Service interface {
	Count(ns string, opts QueryOptions) (int, error)
	Put(ns string, a *Article) (*Article, error)
	Query(ns string, opts QueryOptions) (List, error)
	Setup(ns string) error
	Teardown(ns string) error
}

// ServiceMiddleware is a chainable behaviour modifier for Service.
type ServiceMiddleware func(Service) Service

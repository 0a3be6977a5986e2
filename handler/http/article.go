package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/omanjaya/websmansa-sub004/platform/actor"
	"github.com/omanjaya/websmansa-sub004/service/article"
)

var defaultDeleted = false

// ArticleList returns all published articles.
func ArticleList(articles article.Service) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		as, err := articles.Query(article.NamespaceDefault, article.QueryOptions{
			Deleted: &defaultDeleted,
			Statuses: []article.Status{
				article.StatusPublished,
			},
		})
		if err != nil {
			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusOK, &payloadArticles{articles: as})
	}
}

// ArticlePut creates or updates an article over the administrative surface.
func ArticlePut(articles article.Service) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		if actorFromContext(ctx).Tier != actor.TierAdmin {
			respondError(w, 4011, wrapError(ErrUnauthorized, "admin role required"))
			return
		}

		p := payloadArticle{}

		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		a, err := articles.Put(article.NamespaceDefault, p.article)
		if err != nil {
			if article.IsInvalidArticle(err) {
				respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
				return
			}

			if article.IsNotFound(err) {
				respondError(w, 0, wrapError(ErrNotFound, err.Error()))
				return
			}

			respondError(w, 0, err)
			return
		}

		respondJSON(w, http.StatusOK, &payloadArticle{article: a})
	}
}

// ArticleRetrieve returns the published article for the requested id.
func ArticleRetrieve(articles article.Service) Handler {
	return func(ctx context.Context, w http.ResponseWriter, r *http.Request) {
		id, err := extractArticleID(r)
		if err != nil {
			respondError(w, 0, wrapError(ErrBadRequest, err.Error()))
			return
		}

		as, err := articles.Query(article.NamespaceDefault, article.QueryOptions{
			Deleted: &defaultDeleted,
			IDs: []uint64{
				id,
			},
			Statuses: []article.Status{
				article.StatusPublished,
			},
		})
		if err != nil {
			respondError(w, 0, err)
			return
		}

		if len(as) != 1 {
			respondError(w, 0, wrapError(ErrNotFound, "article not found"))
			return
		}

		respondJSON(w, http.StatusOK, &payloadArticle{article: as[0]})
	}
}

func extractArticleID(r *http.Request) (uint64, error) {
	return strconv.ParseUint(mux.Vars(r)["articleID"], 10, 64)
}

type articleFields struct {
	Body      string    `json:"body"`
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Status    string    `json:"status"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

type payloadArticle struct {
	article *article.Article
}

func (p *payloadArticle) MarshalJSON() ([]byte, error) {
	a := p.article

	return json.Marshal(&articleFields{
		Body:      a.Body,
		ID:        strconv.FormatUint(a.ID, 10),
		Slug:      a.Slug,
		Status:    string(a.Status),
		Title:     a.Title,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	})
}

func (p *payloadArticle) UnmarshalJSON(raw []byte) error {
	f := articleFields{}

	if err := json.Unmarshal(raw, &f); err != nil {
		return err
	}

	var id uint64

	if f.ID != "" {
		parsed, err := strconv.ParseUint(f.ID, 10, 64)
		if err != nil {
			return err
		}

		id = parsed
	}

	p.article = &article.Article{
		Body:   f.Body,
		ID:     id,
		Slug:   f.Slug,
		Status: article.Status(f.Status),
		Title:  f.Title,
	}

	return nil
}

type payloadArticles struct {
	articles article.List
}

func (p *payloadArticles) MarshalJSON() ([]byte, error) {
	as := []*payloadArticle{}

	for _, a := range p.articles {
		as = append(as, &payloadArticle{article: a})
	}

	return json.Marshal(struct {
		Articles      []*payloadArticle `json:"articles"`
		ArticlesCount int               `json:"articles_count"`
	}{
		Articles:      as,
		ArticlesCount: len(as),
	})
}

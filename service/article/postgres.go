package article

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	pgInsertArticle = `INSERT INTO
		%s.articles(body, deleted, slug, status, title, created_at, updated_at)
		VALUES($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	pgUpdateArticle = `
		UPDATE
			%s.articles
		SET
			body = $2,
			deleted = $3,
			slug = $4,
			status = $5,
			title = $6,
			updated_at = $7
		WHERE
			id = $1`

	pgClauseDeleted  = `deleted = ?`
	pgClauseIDs      = `id IN (?)`
	pgClauseSlugs    = `slug IN (?)`
	pgClauseStatuses = `status IN (?)`

	pgCountArticles = `SELECT COUNT(*) FROM %s.articles %s`
	pgListArticles  = `
		SELECT
			body, deleted, id, slug, status, title, created_at, updated_at
		FROM
			%s.articles
		%s
		ORDER BY created_at DESC`

	pgCreateSchema = `CREATE SCHEMA IF NOT EXISTS %s`
	pgCreateTable  = `CREATE TABLE IF NOT EXISTS %s.articles(
		body TEXT NOT NULL,
		deleted BOOL DEFAULT false,
		id BIGSERIAL,
		slug TEXT NOT NULL,
		status TEXT NOT NULL,
		title TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	pgDropTable = `DROP TABLE IF EXISTS %s.articles`
)

type pgService struct {
	db *sqlx.DB
}

// PostgresService returns a Postgres based Service implementation.
func PostgresService(db *sqlx.DB) Service {
	return &pgService{
		db: db,
	}
}

func (s *pgService) Count(ns string, opts QueryOptions) (int, error) {
	where, params, err := convertOpts(opts)
	if err != nil {
		return 0, err
	}

	query, args, err := sqlx.In(
		fmt.Sprintf(pgCountArticles, ns, where),
		params...,
	)
	if err != nil {
		return 0, err
	}

	var count int

	err = s.db.Get(&count, s.db.Rebind(query), args...)
	if err != nil {
		if isRelationNotFound(err) {
			if err := s.Setup(ns); err != nil {
				return 0, err
			}

			err = s.db.Get(&count, s.db.Rebind(query), args...)
		}
	}

	return count, err
}

func (s *pgService) Put(ns string, a *Article) (*Article, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}

	if a.ID == 0 {
		return s.insert(ns, a)
	}

	return s.update(ns, a)
}

func (s *pgService) Query(ns string, opts QueryOptions) (List, error) {
	where, params, err := convertOpts(opts)
	if err != nil {
		return nil, err
	}

	as, err := s.listArticles(ns, where, opts.Limit, params...)
	if err != nil {
		if isRelationNotFound(err) {
			if err := s.Setup(ns); err != nil {
				return nil, err
			}

			as, err = s.listArticles(ns, where, opts.Limit, params...)
		}
	}

	return as, err
}

func (s *pgService) Setup(ns string) error {
	qs := []string{
		fmt.Sprintf(pgCreateSchema, ns),
		fmt.Sprintf(pgCreateTable, ns),
	}

	for _, q := range qs {
		_, err := s.db.Exec(q)
		if err != nil {
			return fmt.Errorf("setup (%s): %s", q, err)
		}
	}

	return nil
}

func (s *pgService) Teardown(ns string) error {
	qs := []string{
		fmt.Sprintf(pgDropTable, ns),
	}

	for _, q := range qs {
		_, err := s.db.Exec(q)
		if err != nil {
			return fmt.Errorf("teardown (%s): %s", q, err)
		}
	}

	return nil
}

func (s *pgService) insert(ns string, a *Article) (*Article, error) {
	now := time.Now().UTC()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	query := fmt.Sprintf(pgInsertArticle, ns)

	err := s.db.QueryRow(
		query,
		a.Body,
		a.Deleted,
		a.Slug,
		string(a.Status),
		a.Title,
		a.CreatedAt,
		a.UpdatedAt,
	).Scan(&a.ID)
	if err != nil {
		if isRelationNotFound(err) {
			if err := s.Setup(ns); err != nil {
				return nil, err
			}

			err = s.db.QueryRow(
				query,
				a.Body,
				a.Deleted,
				a.Slug,
				string(a.Status),
				a.Title,
				a.CreatedAt,
				a.UpdatedAt,
			).Scan(&a.ID)
		}

		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

func (s *pgService) listArticles(
	ns, where string,
	limit int,
	params ...interface{},
) (List, error) {
	query := fmt.Sprintf(pgListArticles, ns, where)

	if limit > 0 {
		query = fmt.Sprintf("%s LIMIT %d", query, limit)
	}

	query, args, err := sqlx.In(query, params...)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	as := List{}

	for rows.Next() {
		a := &Article{}

		err := rows.Scan(
			&a.Body,
			&a.Deleted,
			&a.ID,
			&a.Slug,
			&a.Status,
			&a.Title,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		a.CreatedAt = a.CreatedAt.UTC()
		a.UpdatedAt = a.UpdatedAt.UTC()

		as = append(as, a)
	}

	return as, rows.Err()
}

func (s *pgService) update(ns string, a *Article) (*Article, error) {
	a.UpdatedAt = time.Now().UTC()

	res, err := s.db.Exec(
		fmt.Sprintf(pgUpdateArticle, ns),
		a.ID,
		a.Body,
		a.Deleted,
		a.Slug,
		string(a.Status),
		a.Title,
		a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		return nil, ErrNotFound
	}

	return a, nil
}

func convertOpts(opts QueryOptions) (string, []interface{}, error) {
	var (
		clauses = []string{}
		params  = []interface{}{}
	)

	if opts.Deleted != nil {
		clauses = append(clauses, pgClauseDeleted)
		params = append(params, *opts.Deleted)
	}

	if len(opts.IDs) > 0 {
		ps := []interface{}{}

		for _, id := range opts.IDs {
			ps = append(ps, id)
		}

		clauses = append(clauses, pgClauseIDs)
		params = append(params, ps)
	}

	if len(opts.Slugs) > 0 {
		ps := []interface{}{}

		for _, slug := range opts.Slugs {
			ps = append(ps, slug)
		}

		clauses = append(clauses, pgClauseSlugs)
		params = append(params, ps)
	}

	if len(opts.Statuses) > 0 {
		ps := []interface{}{}

		for _, status := range opts.Statuses {
			ps = append(ps, string(status))
		}

		clauses = append(clauses, pgClauseStatuses)
		params = append(params, ps)
	}

	where := ""

	if len(clauses) > 0 {
		where = fmt.Sprintf("WHERE %s", strings.Join(clauses, " AND "))
	}

	return where, params, nil
}

func isRelationNotFound(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "42P01"
	}

	return false
}

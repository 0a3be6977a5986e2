package article

import (
	"sort"
	"time"
)

type memService struct {
	articles map[string]map[uint64]*Article
	ids      uint64
}

// MemService returns a memory based Service implementation.
func MemService() Service {
	return &memService{
		articles: map[string]map[uint64]*Article{},
	}
}

func (s *memService) Count(ns string, opts QueryOptions) (int, error) {
	if err := s.Setup(ns); err != nil {
		return 0, err
	}

	return len(filterMap(s.articles[ns], opts)), nil
}

func (s *memService) Put(ns string, input *Article) (*Article, error) {
	if err := s.Setup(ns); err != nil {
		return nil, err
	}

	if err := input.Validate(); err != nil {
		return nil, err
	}

	var (
		bucket = s.articles[ns]
		now    = time.Now().UTC()
	)

	if input.ID == 0 {
		s.ids++

		if input.CreatedAt.IsZero() {
			input.CreatedAt = now
		}
		input.ID = s.ids
	} else {
		keep := false

		for _, a := range bucket {
			if a.ID == input.ID {
				keep = true
				input.CreatedAt = a.CreatedAt
			}
		}

		if !keep {
			return nil, ErrNotFound
		}
	}

	input.UpdatedAt = now
	bucket[input.ID] = copy(input)

	return copy(input), nil
}

func (s *memService) Query(ns string, opts QueryOptions) (List, error) {
	if err := s.Setup(ns); err != nil {
		return nil, err
	}

	as := filterMap(s.articles[ns], opts)

	if opts.Limit > 0 && len(as) > opts.Limit {
		as = as[:opts.Limit]
	}

	return as, nil
}

func (s *memService) Setup(ns string) error {
	if _, ok := s.articles[ns]; !ok {
		s.articles[ns] = map[uint64]*Article{}
	}

	return nil
}

func (s *memService) Teardown(ns string) error {
	delete(s.articles, ns)

	return nil
}

func copy(a *Article) *Article {
	old := *a
	return &old
}

func filterMap(bucket map[uint64]*Article, opts QueryOptions) List {
	as := List{}

	for _, a := range bucket {
		if !inOpts(a, opts) {
			continue
		}

		as = append(as, copy(a))
	}

	sort.Slice(as, func(i, j int) bool {
		return as[i].CreatedAt.After(as[j].CreatedAt)
	})

	return as
}

func inOpts(a *Article, opts QueryOptions) bool {
	if opts.Deleted != nil && a.Deleted != *opts.Deleted {
		return false
	}

	if len(opts.IDs) > 0 {
		keep := false

		for _, id := range opts.IDs {
			if a.ID == id {
				keep = true
				break
			}
		}

		if !keep {
			return false
		}
	}

	if len(opts.Slugs) > 0 {
		keep := false

		for _, slug := range opts.Slugs {
			if a.Slug == slug {
				keep = true
				break
			}
		}

		if !keep {
			return false
		}
	}

	if len(opts.Statuses) > 0 {
		keep := false

		for _, status := range opts.Statuses {
			if a.Status == status {
				keep = true
				break
			}
		}

		if !keep {
			return false
		}
	}

	return true
}

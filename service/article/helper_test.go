package article

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
)

type prepareFunc func(t *testing.T, namespace string) Service

func testArticle() *Article {
	n := rand.Intn(1 << 30)

	return &Article{
		Body:   fmt.Sprintf("body %d", n),
		Slug:   fmt.Sprintf("slug-%d", n),
		Status: StatusPublished,
		Title:  fmt.Sprintf("title %d", n),
	}
}

func testList() List {
	as := List{}

	for i := 0; i < 5; i++ {
		a := testArticle()

		a.Deleted = true

		as = append(as, a)
	}

	for i := 0; i < 7; i++ {
		as = append(as, testArticle())
	}

	for i := 0; i < 3; i++ {
		a := testArticle()

		a.Status = StatusDraft

		as = append(as, a)
	}

	return as
}

func testServiceCount(t *testing.T, p prepareFunc) {
	var (
		deleted   = true
		namespace = "service_count"
		service   = p(t, namespace)
	)

	count, err := service.Count(namespace, QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	for _, a := range testList() {
		if _, err := service.Put(namespace, a); err != nil {
			t.Fatal(err)
		}
	}

	count, err = service.Count(namespace, QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, 15; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	count, err = service.Count(namespace, QueryOptions{
		Deleted: &deleted,
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, 5; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	count, err = service.Count(namespace, QueryOptions{
		Statuses: []Status{StatusDraft},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := count, 3; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServicePut(t *testing.T, p prepareFunc) {
	var (
		namespace = "service_put"
		service   = p(t, namespace)
	)

	created, err := service.Put(namespace, testArticle())
	if err != nil {
		t.Fatal(err)
	}

	if created.ID == 0 {
		t.Errorf("id not assigned")
	}

	list, err := service.Query(namespace, QueryOptions{
		IDs: []uint64{created.ID},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), 1; have != want {
		t.Fatalf("have %v, want %v", have, want)
	}

	if have, want := list[0], created; !reflect.DeepEqual(have, want) {
		t.Errorf("have %v, want %v", have, want)
	}

	created.Title = "updated title"

	updated, err := service.Put(namespace, created)
	if err != nil {
		t.Fatal(err)
	}

	list, err = service.Query(namespace, QueryOptions{
		IDs: []uint64{updated.ID},
	})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := list[0].Title, "updated title"; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = service.Put(namespace, &Article{
		ID:     123456789,
		Slug:   "missing",
		Status: StatusPublished,
		Title:  "missing",
	})

	if have, want := IsNotFound(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	_, err = service.Put(namespace, &Article{})

	if have, want := IsInvalidArticle(err), true; have != want {
		t.Errorf("have %v, want %v", have, want)
	}
}

func testServiceQuery(t *testing.T, p prepareFunc) {
	var (
		namespace = "service_query"
		service   = p(t, namespace)
	)

	list, err := service.Query(namespace, QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}

	if have, want := len(list), 0; have != want {
		t.Errorf("have %v, want %v", have, want)
	}

	a := testArticle()
	a.Slug = "known-slug"

	if _, err := service.Put(namespace, a); err != nil {
		t.Fatal(err)
	}

	for _, a := range testList() {
		if _, err := service.Put(namespace, a); err != nil {
			t.Fatal(err)
		}
	}

	cases := []struct {
		opts QueryOptions
		want int
	}{
		{QueryOptions{}, 16},
		{QueryOptions{Limit: 4}, 4},
		{QueryOptions{Slugs: []string{"known-slug"}}, 1},
		{QueryOptions{Statuses: []Status{StatusPublished}}, 13},
	}

	for _, c := range cases {
		list, err := service.Query(namespace, c.opts)
		if err != nil {
			t.Fatal(err)
		}

		if have, want := len(list), c.want; have != want {
			t.Errorf("have %v, want %v (%v)", have, want, c.opts)
		}
	}
}

func prepareMem(t *testing.T, ns string) Service {
	return MemService()
}

package users

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreCreateAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	u := &User{
		ID:        "usr_1",
		Username:  "alice",
		Email:     "alice@example.com",
		Active:    true,
		CreatedAt: time.Now(),
	}
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := store.Get(ctx, "usr_1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("username = %q, want alice", got.Username)
	}

	got, err = store.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername: %v", err)
	}
	if got.ID != "usr_1" {
		t.Errorf("id = %q, want usr_1", got.ID)
	}
}

func TestMemoryStoreDuplicateUsername(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &User{ID: "usr_1", Username: "alice"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	err := store.Create(ctx, &User{ID: "usr_2", Username: "alice"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Errorf("Create duplicate = %v, want ErrUsernameTaken", err)
	}
}

func TestMemoryStoreNotFound(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get missing = %v, want ErrNotFound", err)
	}
	if err := store.Update(ctx, &User{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now()
	for i, name := range []string{"alice", "bob", "carol"} {
		err := store.Create(ctx, &User{
			ID:        "usr_" + name,
			Username:  name,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Create %s: %v", name, err)
		}
	}

	all, err := store.List(ctx, 10, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 3 || all[0].Username != "alice" || all[2].Username != "carol" {
		t.Errorf("List ordering wrong: %+v", all)
	}

	page, err := store.List(ctx, 1, 1)
	if err != nil {
		t.Fatalf("List page: %v", err)
	}
	if len(page) != 1 || page[0].Username != "bob" {
		t.Errorf("List(1,1) = %+v, want [bob]", page)
	}

	empty, err := store.List(ctx, 10, 99)
	if err != nil {
		t.Fatalf("List past end: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("List past end = %+v, want empty", empty)
	}
}

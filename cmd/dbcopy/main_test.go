package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stevecastle/galleria/photos"
)

func seed(t *testing.T, path string, rows map[string]int) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if err := photos.InitializeSchema(db); err != nil {
		t.Fatal(err)
	}
	store := photos.NewStore(db)
	for user, n := range rows {
		for i := 0; i < n; i++ {
			if _, err := store.Create(context.Background(), photos.NewPhoto{UserID: user, Title: "t", Description: "d", Src: "s"}); err != nil {
				t.Fatal(err)
			}
		}
	}
}

func TestCopyUserPhotos(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	dst := filepath.Join(dir, "dst.db")
	seed(t, src, map[string]int{"alice": 3, "bob": 2})

	db, err := openAttached(src, dst)
	if err != nil {
		t.Fatalf("openAttached: %v", err)
	}
	defer db.Close()

	matched, inserted, err := copyUserPhotos(db, "alice", "IGNORE", true)
	if err != nil || matched != 3 || inserted != 0 {
		t.Fatalf("dry run = %d, %d, %v", matched, inserted, err)
	}

	matched, inserted, err = copyUserPhotos(db, "alice", "IGNORE", false)
	if err != nil || matched != 3 || inserted != 3 {
		t.Fatalf("copy = %d, %d, %v", matched, inserted, err)
	}

	// Copying again is a no-op with IGNORE.
	if _, inserted, err = copyUserPhotos(db, "alice", "IGNORE", false); err != nil || inserted != 0 {
		t.Errorf("repeat copy inserted %d, %v", inserted, err)
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM dest.photos WHERE user_id = 'bob'`).Scan(&n)
	if n != 0 {
		t.Errorf("bob's photos copied: %d", n)
	}

	if _, _, err := copyUserPhotos(db, "alice", "DROP TABLE", false); err == nil {
		t.Error("invalid conflict verb should fail")
	}
}

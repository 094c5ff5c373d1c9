package tle

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"
)

func TestCacheWriteLoadPrune(t *testing.T) {
	dir := t.TempDir()
	c := NewCache(dir, 2)

	if _, _, err := c.LoadLatest(); !errors.Is(err, ErrCacheEmpty) {
		t.Fatalf("empty cache: got %v, want ErrCacheEmpty", err)
	}

	base := time.Date(2025, 2, 14, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		data := issName + "\n" + issLine1 + "\n" + issLine2 + "\n"
		if i == 2 {
			data = "HST\n" + hstLine1 + "\n" + hstLine2 + "\n"
		}
		if err := c.Write([]byte(data), base.Add(time.Duration(i)*time.Hour)); err != nil {
			t.Fatal(err)
		}
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Errorf("got %d files after prune, want 2", len(files))
	}

	ds, err := c.Load(testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if !ds.FetchedAt.Equal(base.Add(2 * time.Hour)) {
		t.Errorf("FetchedAt = %v", ds.FetchedAt)
	}
	if ds.Source != "cache" || len(ds.Satellites) != 1 || ds.Satellites[0].NORADID != 20580 {
		t.Errorf("dataset = %+v", ds)
	}
}

func TestStoreRefresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(issName + "\n" + issLine1 + "\n" + issLine2 + "\n"))
	}))
	defer server.Close()

	store := NewStore()
	if store.AgeSeconds() != -1 {
		t.Error("empty store should report age -1")
	}

	cache := NewCache(t.TempDir(), 3)
	ds, err := store.Refresh(context.Background(), NewFetcher(server.URL, testLogger), cache, testLogger)
	if err != nil {
		t.Fatal(err)
	}
	if store.Get() != ds {
		t.Error("Refresh did not install the dataset")
	}
	if ds.Source != server.URL {
		t.Errorf("Source = %q", ds.Source)
	}
	if _, ok := ds.Find(25544); !ok {
		t.Error("ISS missing from refreshed dataset")
	}
	if _, _, err := cache.LoadLatest(); err != nil {
		t.Errorf("refresh did not write the cache: %v", err)
	}
}

func TestStoreRefreshEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("nothing useful\n"))
	}))
	defer server.Close()

	store := NewStore()
	if _, err := store.Refresh(context.Background(), NewFetcher(server.URL, testLogger), nil, testLogger); err == nil {
		t.Fatal("expected error for a response without entries")
	}
	if store.Get() != nil {
		t.Error("failed refresh must not install a dataset")
	}
}

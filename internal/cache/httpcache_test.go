package cache

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"
)

func TestHTTPCache_SaveLoad(t *testing.T) {
	c := &HTTPCache{Dir: t.TempDir()}
	ctx := context.Background()
	if err := c.Save(ctx, "https://a.com/1", "text/html", `"e1"`, "", []byte("body")); err != nil {
		t.Fatalf("save: %v", err)
	}
	meta, err := c.LoadMeta(ctx, "https://a.com/1")
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.ETag != `"e1"` || meta.URL != "https://a.com/1" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
	b, err := c.LoadBody(ctx, "https://a.com/1")
	if err != nil || string(b) != "body" {
		t.Fatalf("unexpected body %q err %v", b, err)
	}
}

func TestHTTPCache_StrictPerms(t *testing.T) {
	dir := t.TempDir() + "/pages"
	c := &HTTPCache{Dir: dir, StrictPerms: true}
	if err := c.Save(context.Background(), "https://a.com/", "text/html", "", "", []byte("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(c.bodyPath(pageKey("https://a.com/")))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode()&0o777 != 0o600 {
		t.Fatalf("expected 0600, got %o", info.Mode()&0o777)
	}
}

func TestPurgeHTTPCacheByAge(t *testing.T) {
	dir := t.TempDir()
	c := &HTTPCache{Dir: dir}
	ctx := context.Background()
	if err := c.Save(ctx, "https://old.example/", "text/html", "", "", []byte("old")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := c.Save(ctx, "https://new.example/", "text/html", "", "", []byte("new")); err != nil {
		t.Fatalf("save: %v", err)
	}
	// backdate the first entry
	old := PageEntry{URL: "https://old.example/", SavedAt: time.Now().Add(-48 * time.Hour)}
	b, _ := json.Marshal(old)
	if err := os.WriteFile(c.metaPath(pageKey(old.URL)), b, 0o644); err != nil {
		t.Fatalf("backdate: %v", err)
	}
	removed, err := PurgeHTTPCacheByAge(dir, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := c.LoadBody(ctx, old.URL); err == nil {
		t.Fatalf("expected old body removed")
	}
	if _, err := c.LoadBody(ctx, "https://new.example/"); err != nil {
		t.Fatalf("expected new body kept: %v", err)
	}
}

func TestClearDir(t *testing.T) {
	dir := t.TempDir() + "/cache"
	c := &HTTPCache{Dir: dir + "/http"}
	if err := c.Save(context.Background(), "https://a.com/", "text/html", "", "", []byte("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := ClearDir(dir); err != nil {
		t.Fatalf("clear: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) != 0 {
		t.Fatalf("expected empty dir, got %d entries (err %v)", len(entries), err)
	}
	if err := ClearDir(" "); err == nil {
		t.Fatalf("expected error for blank dir")
	}
}

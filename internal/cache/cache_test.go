package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/hyperifyio/serpgate/internal/model"
)

func TestFingerprint_FieldOrderAndNormalization(t *testing.T) {
	a := model.SearchRequest{Query: "Go  Generics", Region: "US", Language: "en", Limit: 10, OutputFormat: "markdown"}
	b := model.SearchRequest{OutputFormat: "markdown", Limit: 10, Language: "EN", Region: "us", Mode: "search", Query: " go generics "}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("expected equal fingerprints")
	}
	c := a
	c.Limit = 11
	if Fingerprint(a) == Fingerprint(c) {
		t.Fatalf("limit must change fingerprint")
	}
	d := a
	d.OutputFormat = "vectors"
	e := a
	e.OutputFormat = "vector"
	if Fingerprint(d) != Fingerprint(e) {
		t.Fatalf("format alias must not change fingerprint")
	}
}

func TestFingerprint_ScrapeKeepsURLCase(t *testing.T) {
	a := model.SearchRequest{Query: "https://example.com/Page", Mode: model.ModeScrape}
	b := model.SearchRequest{Query: "https://example.com/page", Mode: model.ModeScrape}
	if Fingerprint(a) == Fingerprint(b) {
		t.Fatalf("scrape paths are case sensitive")
	}
}

func TestGateway_RoundTripMarksCached(t *testing.T) {
	g := &Gateway{Store: NewMemoryStore(), TTL: time.Minute}
	ctx := context.Background()
	want := model.Result{Query: "q", OrganicResults: []model.OrganicResult{{URL: "https://a.com", Title: "A"}}, FormattedOutput: "md", TokenEstimate: 1}
	g.Set(ctx, "k", want)
	got, ok := g.Get(ctx, "k")
	if !ok {
		t.Fatalf("expected hit")
	}
	if !got.Cached || got.FormattedOutput != "md" || len(got.OrganicResults) != 1 {
		t.Fatalf("unexpected result: %+v", got)
	}
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("connection refused")
}
func (failingStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("connection refused")
}

func TestGateway_UnavailableStoreDegrades(t *testing.T) {
	var lookups, hits int
	g := &Gateway{Store: failingStore{}, OnLookup: func(hit bool) {
		lookups++
		if hit {
			hits++
		}
	}}
	g.Set(context.Background(), "k", model.Result{Query: "q"})
	if _, ok := g.Get(context.Background(), "k"); ok {
		t.Fatalf("expected miss")
	}
	if lookups != 1 || hits != 0 {
		t.Fatalf("unexpected observer counts %d/%d", lookups, hits)
	}
}

func TestMemoryStore_Expiry(t *testing.T) {
	m := NewMemoryStore()
	now := time.Now()
	m.now = func() time.Time { return now }
	_ = m.Set(context.Background(), "k", []byte("v"), time.Second)
	if _, err := m.Get(context.Background(), "k"); err != nil {
		t.Fatalf("expected hit: %v", err)
	}
	now = now.Add(2 * time.Second)
	if _, err := m.Get(context.Background(), "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss after expiry, got %v", err)
	}
}

func TestMemoryStore_ExpiredGetKeepsConcurrentSet(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()
	clock := time.Now()
	m.now = func() time.Time { return clock }
	_ = m.Set(ctx, "k", []byte("old"), time.Second)
	clock = clock.Add(2 * time.Second)

	// the first clock read inside Get happens after the read lock is
	// dropped; a Set lands right there
	armed := true
	m.now = func() time.Time {
		if armed {
			armed = false
			_ = m.Set(ctx, "k", []byte("new"), time.Hour)
		}
		return clock
	}
	if _, err := m.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss for the expired read, got %v", err)
	}
	b, err := m.Get(ctx, "k")
	if err != nil || string(b) != "new" {
		t.Fatalf("fresh entry was dropped: %q %v", b, err)
	}
}

func TestRedisStore_TTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedisStore(client)
	ctx := context.Background()

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	b, err := s.Get(ctx, "k")
	if err != nil || string(b) != "v" {
		t.Fatalf("unexpected get %q %v", b, err)
	}
	mr.FastForward(2 * time.Hour)
	if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestRedisStore_ServerDownIsMissThroughGateway(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	g := &Gateway{Store: NewRedisStore(client), Timeout: 500 * time.Millisecond}
	mr.Close()
	if _, ok := g.Get(context.Background(), "k"); ok {
		t.Fatalf("expected miss with server down")
	}
	g.Set(context.Background(), "k", model.Result{Query: "q"})
}

func TestFileStore_TTLAndPurge(t *testing.T) {
	dir := t.TempDir()
	s := &FileStore{Dir: dir, StrictPerms: true}
	ctx := context.Background()
	if err := s.Set(ctx, KeyPrefix+"live", []byte("a"), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Set(ctx, KeyPrefix+"dead", []byte("b"), time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	past := time.Now().Add(-time.Minute)
	if err := os.Chtimes(s.pathFor(KeyPrefix+"dead"), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if b, err := s.Get(ctx, KeyPrefix+"live"); err != nil || string(b) != "a" {
		t.Fatalf("unexpected live entry %q %v", b, err)
	}
	info, err := os.Stat(filepath.Join(dir, "serpgate_v1_live.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode()&0o777 != 0o600 {
		t.Fatalf("expected 0600, got %o", info.Mode()&0o777)
	}
	removed, err := PurgeExpiredResults(dir)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if _, err := s.Get(ctx, KeyPrefix+"dead"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected miss for expired entry, got %v", err)
	}
}

func TestFileStore_ConcurrentSetAndGet(t *testing.T) {
	dir := t.TempDir()
	s := &FileStore{Dir: dir}
	ctx := context.Background()
	key := KeyPrefix + "hot"

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-stop:
				return
			default:
				_, _ = s.Get(ctx, key)
			}
		}
	}()

	var failures int
	var wg sync.WaitGroup
	var mu sync.Mutex
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				if err := s.Set(ctx, key, []byte("v"), time.Hour); err != nil {
					mu.Lock()
					failures++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	close(stop)
	<-done

	if failures != 0 {
		t.Fatalf("%d sets failed", failures)
	}
	if b, err := s.Get(ctx, key); err != nil || string(b) != "v" {
		t.Fatalf("entry lost: %q %v", b, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the entry file, found %d files", len(entries))
	}
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewRedisClient("redis://" + mr.Addr() + "/0")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer client.Close()
	if err := NewRedisStore(client).Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, err := NewRedisClient("not a url"); err == nil {
		t.Fatalf("expected parse error")
	}
}

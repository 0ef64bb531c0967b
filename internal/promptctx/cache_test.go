package promptctx

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/ghimmohmoh/ghimmohmoh/internal/warehouse"
)

func TestCacheIdenticalRequestsQueryWarehouseOnce(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	columnsQuery, _ := warehouse.Snowflake.ColumnsQuery(sampleTable)
	metadataQuery := warehouse.Snowflake.SampleQuery(sampleTable, 100)
	mock.ExpectQuery(regexp.QuoteMeta(columnsQuery)).
		WithArgs("SCHEMA", "VIEW3").
		WillReturnRows(sqlmock.NewRows([]string{"COLUMN_NAME", "DATA_TYPE"}).AddRow("TITLE", "VARCHAR"))
	mock.ExpectQuery(regexp.QuoteMeta(metadataQuery)).
		WillReturnRows(sqlmock.NewRows([]string{"TITLE", "CATEGORY"}).AddRow("Conference A", "Business"))

	cache := NewCache(NewBuilder(warehouse.NewSQLSource(db, warehouse.Snowflake, 100), nil), CacheOptions{Size: 8})
	req := Request{Table: sampleTable, Description: "Sample table.", MetadataQuery: metadataQuery}

	first, err := cache.Get(context.Background(), req)
	if err != nil {
		t.Fatalf("first Get() error = %v", err)
	}
	second, err := cache.Get(context.Background(), req)
	if err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if first != second {
		t.Fatal("cached document differs from first build")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestCacheKeysOnFullRequest(t *testing.T) {
	loader := &countingLoader{}
	cache := NewCache(loader, CacheOptions{})

	requests := []Request{
		{Table: sampleTable, Description: "a"},
		{Table: sampleTable, Description: "b"},
		{Table: sampleTable, Description: "a", MetadataQuery: "q"},
	}
	for _, req := range requests {
		if _, err := cache.Get(context.Background(), req); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	for _, req := range requests {
		if _, err := cache.Get(context.Background(), req); err != nil {
			t.Fatalf("Get() error = %v", err)
		}
	}
	if got := loader.builds.Load(); got != 3 {
		t.Fatalf("builds = %d, want 3", got)
	}
	if cache.Len() != 3 {
		t.Fatalf("Len() = %d", cache.Len())
	}
}

func TestCacheInvalidateForcesRebuild(t *testing.T) {
	loader := &countingLoader{}
	cache := NewCache(loader, CacheOptions{})
	req := Request{Table: sampleTable}

	mustGet(t, cache, req)
	cache.Invalidate()
	if cache.Len() != 0 {
		t.Fatalf("Len() after Invalidate = %d", cache.Len())
	}
	mustGet(t, cache, req)
	if got := loader.builds.Load(); got != 2 {
		t.Fatalf("builds = %d, want 2", got)
	}
}

func TestCacheForgetDropsOneRequest(t *testing.T) {
	loader := &countingLoader{}
	cache := NewCache(loader, CacheOptions{})
	kept := Request{Table: sampleTable, Description: "kept"}
	dropped := Request{Table: sampleTable, Description: "dropped"}

	mustGet(t, cache, kept)
	mustGet(t, cache, dropped)
	cache.Forget(dropped)
	mustGet(t, cache, kept)
	mustGet(t, cache, dropped)

	if got := loader.builds.Load(); got != 3 {
		t.Fatalf("builds = %d, want 3", got)
	}
}

func TestCacheTTLExpiryForcesRebuild(t *testing.T) {
	loader := &countingLoader{}
	cache := NewCache(loader, CacheOptions{TTL: 20 * time.Millisecond})
	req := Request{Table: sampleTable}

	mustGet(t, cache, req)
	mustGet(t, cache, req)
	time.Sleep(60 * time.Millisecond)
	mustGet(t, cache, req)

	if got := loader.builds.Load(); got != 2 {
		t.Fatalf("builds = %d, want 2", got)
	}
}

func TestCacheDoesNotStoreFailures(t *testing.T) {
	loader := &countingLoader{err: errors.New("warehouse down")}
	cache := NewCache(loader, CacheOptions{})
	req := Request{Table: sampleTable}

	if _, err := cache.Get(context.Background(), req); err == nil {
		t.Fatal("expected error")
	}
	loader.setErr(nil)
	mustGet(t, cache, req)
	if got := loader.builds.Load(); got != 2 {
		t.Fatalf("builds = %d, want 2", got)
	}
}

func TestCacheCollapsesConcurrentMisses(t *testing.T) {
	release := make(chan struct{})
	loader := &countingLoader{block: release}
	cache := NewCache(loader, CacheOptions{})
	req := Request{Table: sampleTable}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Get(context.Background(), req); err != nil {
				errs <- err
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("Get() error = %v", err)
	}
	if got := loader.builds.Load(); got != 1 {
		t.Fatalf("builds = %d, want 1", got)
	}
}

func TestCacheSizeEvictsLeastRecentlyUsed(t *testing.T) {
	loader := &countingLoader{}
	cache := NewCache(loader, CacheOptions{Size: 1})
	first := Request{Table: sampleTable, Description: "first"}
	second := Request{Table: sampleTable, Description: "second"}

	mustGet(t, cache, first)
	mustGet(t, cache, second)
	mustGet(t, cache, first)
	if got := loader.builds.Load(); got != 3 {
		t.Fatalf("builds = %d, want 3", got)
	}
}

func TestCacheWaiterSurvivesCancelledStarter(t *testing.T) {
	loader := &versionedLoader{release: make(chan struct{})}
	cache := NewCache(loader, CacheOptions{})
	req := Request{Table: sampleTable}

	starterCtx, cancel := context.WithCancel(context.Background())
	starterErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(starterCtx, req)
		starterErr <- err
	}()
	waitForBuilds(t, loader, 1)

	type result struct {
		document string
		err      error
	}
	waiter := make(chan result, 1)
	go func() {
		document, err := cache.Get(context.Background(), req)
		waiter <- result{document, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := <-starterErr; !errors.Is(err, context.Canceled) {
		t.Fatalf("starter error = %v, want context.Canceled", err)
	}
	close(loader.release)

	got := <-waiter
	if got.err != nil {
		t.Fatalf("waiter error = %v", got.err)
	}
	if got.document != "v0" {
		t.Fatalf("waiter document = %q", got.document)
	}
	if builds := loader.builds.Load(); builds != 1 {
		t.Fatalf("builds = %d, want 1", builds)
	}
	if cache.Len() != 1 {
		t.Fatalf("Len() = %d, want the shared build cached", cache.Len())
	}
}

func TestCacheInvalidateDuringBuildStartsFreshBuild(t *testing.T) {
	loader := &versionedLoader{release: make(chan struct{})}
	cache := NewCache(loader, CacheOptions{})
	req := Request{Table: sampleTable}

	inFlight := make(chan string, 1)
	go func() {
		document, _ := cache.Get(context.Background(), req)
		inFlight <- document
	}()
	waitForBuilds(t, loader, 1)

	loader.version.Store(1)
	cache.Invalidate()

	if got := mustGet(t, cache, req); got != "v1" {
		t.Fatalf("Get() after Invalidate = %q, want v1", got)
	}
	close(loader.release)
	if got := <-inFlight; got != "v0" {
		t.Fatalf("in-flight Get() = %q, want v0", got)
	}
	if got := mustGet(t, cache, req); got != "v1" {
		t.Fatalf("cached document = %q, stale build was stored", got)
	}
	if builds := loader.builds.Load(); builds != 2 {
		t.Fatalf("builds = %d, want 2", builds)
	}
}

func TestCacheBuildTimeout(t *testing.T) {
	loader := &versionedLoader{release: make(chan struct{})}
	cache := NewCache(loader, CacheOptions{BuildTimeout: 20 * time.Millisecond})

	_, err := cache.Get(context.Background(), Request{Table: sampleTable})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Get() error = %v, want deadline exceeded", err)
	}
	if cache.Len() != 0 {
		t.Fatalf("Len() = %d", cache.Len())
	}
}

func waitForBuilds(t *testing.T, loader *versionedLoader, want int64) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for loader.builds.Load() < want {
		if time.Now().After(deadline) {
			t.Fatalf("builds = %d, want %d", loader.builds.Load(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func mustGet(t *testing.T, cache *Cache, req Request) string {
	t.Helper()
	document, err := cache.Get(context.Background(), req)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return document
}

type countingLoader struct {
	builds atomic.Int64
	block  chan struct{}
	mu     sync.Mutex
	err    error
}

func (l *countingLoader) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *countingLoader) Build(_ context.Context, req Request) (string, error) {
	l.builds.Add(1)
	if l.block != nil {
		<-l.block
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", l.err
	}
	return "context for " + req.Table.String() + "/" + req.Description, nil
}

// versionedLoader holds builds that start at version 0 until release closes.
type versionedLoader struct {
	builds  atomic.Int64
	version atomic.Int64
	release chan struct{}
}

func (l *versionedLoader) Build(ctx context.Context, _ Request) (string, error) {
	l.builds.Add(1)
	version := l.version.Load()
	if version == 0 {
		select {
		case <-l.release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return "v" + strconv.FormatInt(version, 10), nil
}

package sync

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nsarvesh2011/gaino/internal/auth"
	"github.com/nsarvesh2011/gaino/internal/domain"
	"github.com/nsarvesh2011/gaino/internal/store"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory document store with scriptable failures.
type fakeStore struct {
	mu sync.Mutex

	files   map[string]*fakeFile // id -> file
	nextID  int
	etagSeq int

	listErr     error
	downloadErr error
	metaErr     error
	createErr   error
	updateErr   error

	// updateRejects rejects this many conditional updates with 412 before
	// accepting. Unconditional updates are never rejected.
	updateRejects int

	listCalls, createCalls, updateCalls, metaCalls int
}

type fakeFile struct {
	name string
	data []byte
	etag string
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: map[string]*fakeFile{}}
}

func (s *fakeStore) seed(name string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	s.etagSeq++
	id := "file-" + string(rune('0'+s.nextID))
	s.files[id] = &fakeFile{name: name, data: data, etag: s.tag()}
	return id
}

func (s *fakeStore) tag() string {
	return "v" + string(rune('0'+s.etagSeq))
}

func (s *fakeStore) List(_ context.Context, nameEquals string) ([]store.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []store.FileInfo
	for id, f := range s.files {
		if f.name == nameEquals {
			out = append(out, store.FileInfo{ID: id, Name: f.name})
		}
	}
	return out, nil
}

func (s *fakeStore) GetMetadata(_ context.Context, id string) (store.Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metaCalls++
	if s.metaErr != nil {
		return store.Metadata{}, s.metaErr
	}
	f, ok := s.files[id]
	if !ok {
		return store.Metadata{}, &store.StatusError{Op: "meta", Code: http.StatusNotFound}
	}
	return store.Metadata{ID: id, Name: f.name, VersionTag: f.etag}, nil
}

func (s *fakeStore) Download(_ context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.downloadErr != nil {
		return nil, s.downloadErr
	}
	f, ok := s.files[id]
	if !ok {
		return nil, &store.StatusError{Op: "download", Code: http.StatusNotFound}
	}
	return append([]byte(nil), f.data...), nil
}

func (s *fakeStore) Create(_ context.Context, name string, media []byte) (store.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return store.FileInfo{}, s.createErr
	}
	s.nextID++
	s.etagSeq++
	id := "file-" + string(rune('0'+s.nextID))
	s.files[id] = &fakeFile{name: name, data: append([]byte(nil), media...), etag: s.tag()}
	return store.FileInfo{ID: id, Name: name}, nil
}

func (s *fakeStore) Update(_ context.Context, id, ifMatch, name string, media []byte) (store.FileInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.updateErr != nil {
		return store.FileInfo{}, s.updateErr
	}
	f, ok := s.files[id]
	if !ok {
		return store.FileInfo{}, &store.StatusError{Op: "update", Code: http.StatusNotFound}
	}
	if ifMatch != "" {
		if s.updateRejects > 0 {
			s.updateRejects--
			return store.FileInfo{}, &store.StatusError{Op: "update", Code: http.StatusPreconditionFailed}
		}
		if ifMatch != f.etag {
			return store.FileInfo{}, &store.StatusError{Op: "update", Code: http.StatusPreconditionFailed}
		}
	}
	f.data = append([]byte(nil), media...)
	s.etagSeq++
	f.etag = s.tag()
	return store.FileInfo{ID: id, Name: name}, nil
}

var _ store.DocumentStore = (*fakeStore)(nil)

func newTestEngine(t *testing.T, docs store.DocumentStore, tokens auth.TokenProvider) *Engine {
	t.Helper()
	cachePath := filepath.Join(t.TempDir(), "portfolio_cache.json")
	return New(docs, tokens, cachePath, "test-client", zerolog.Nop())
}

func online() auth.TokenProvider  { return auth.Static{Token: "tok"} }
func offline() auth.TokenProvider { return auth.Static{} }

// TestLoadCreatesRemoteOnFirstUse tests find-or-create with no pre-existing
// document, and that the second load reuses the resolved id.
func TestLoadCreatesRemoteOnFirstUse(t *testing.T) {
	docs := newFakeStore()
	engine := newTestEngine(t, docs, online())

	p := engine.Load(context.Background())
	assert.Equal(t, domain.New(), p)
	assert.Equal(t, 1, docs.createCalls)
	assert.Len(t, docs.files, 1)

	// Second load must reuse the session's file id: no new create, no list.
	engine.Load(context.Background())
	assert.Equal(t, 1, docs.createCalls)
	assert.Equal(t, 1, docs.listCalls)
	assert.Len(t, docs.files, 1)
}

// TestLoadPrefersRemoteOverCache tests the ordering guarantee.
func TestLoadPrefersRemoteOverCache(t *testing.T) {
	remote, err := domain.Encode(domain.New().UpsertLot("NSE:INFY", 2, 90, "2024-01-01"))
	require.NoError(t, err)
	docs := newFakeStore()
	docs.seed(FileName, remote)

	engine := newTestEngine(t, docs, online())
	stale, err := domain.Encode(domain.New().UpsertLot("NSE:TCS", 1, 3500, "2023-06-01"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(engine.cachePath, stale, 0o600))

	p := engine.Load(context.Background())
	_, ok := p.FindHolding("NSE:INFY")
	assert.True(t, ok)
	_, ok = p.FindHolding("NSE:TCS")
	assert.False(t, ok)

	// Remote read refreshes the cache.
	cached, err := os.ReadFile(engine.cachePath)
	require.NoError(t, err)
	assert.Equal(t, remote, cached)
}

// TestLoadCacheFallbackOffline tests the credential-absent path.
func TestLoadCacheFallbackOffline(t *testing.T) {
	docs := newFakeStore()
	engine := newTestEngine(t, docs, offline())

	cached, err := domain.Encode(domain.New().UpsertLot("NSE:INFY", 1, 100, "2024-01-01"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(engine.cachePath, cached, 0o600))

	p := engine.Load(context.Background())
	require.Len(t, p.Holdings, 1)
	assert.Equal(t, 0, docs.listCalls)
}

// TestLoadCacheFallbackOnRemoteFailure tests total remote failure.
func TestLoadCacheFallbackOnRemoteFailure(t *testing.T) {
	docs := newFakeStore()
	docs.listErr = errors.New("network down")
	engine := newTestEngine(t, docs, online())

	cached, err := domain.Encode(domain.New().UpsertLot("NSE:INFY", 1, 100, "2024-01-01"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(engine.cachePath, cached, 0o600))

	p := engine.Load(context.Background())
	assert.Len(t, p.Holdings, 1)
}

// TestLoadEmptyWithNothing tests the final degradation step.
func TestLoadEmptyWithNothing(t *testing.T) {
	engine := newTestEngine(t, newFakeStore(), offline())
	assert.Equal(t, domain.New(), engine.Load(context.Background()))
}

// TestLoadRepairsTrailingComma tests that a known malformed-JSON artifact
// parses to the same result as the well-formed equivalent.
func TestLoadRepairsTrailingComma(t *testing.T) {
	malformed := []byte(`{"version":1,"displayCurrency":"INR","holdings":[{"id":"NSE:INFY","kind":"stock","symbol":"NSE:INFY","currency":"INR","lots":[{"qty":2,"price":90,"date":"2024-01-01"},]},]}`)
	docs := newFakeStore()
	docs.seed(FileName, malformed)

	engine := newTestEngine(t, docs, online())
	p := engine.Load(context.Background())

	h, ok := p.FindHolding("NSE:INFY")
	require.True(t, ok)
	require.Len(t, h.Lots, 1)
	assert.Equal(t, 2.0, h.Lots[0].Qty)
	// No self-heal: the document was recoverable.
	assert.Equal(t, 0, docs.updateCalls)
}

// TestLoadSelfHealsCorruptRemote tests that unparseable remote content is
// overwritten with an empty document, remotely and in cache.
func TestLoadSelfHealsCorruptRemote(t *testing.T) {
	docs := newFakeStore()
	id := docs.seed(FileName, []byte(`{"holdings":[{{`))

	engine := newTestEngine(t, docs, online())
	p := engine.Load(context.Background())
	assert.Equal(t, domain.New(), p)

	// Remote was overwritten with a valid empty document.
	healed, err := domain.Decode(docs.files[id].data)
	require.NoError(t, err)
	assert.Equal(t, domain.New(), healed)

	cached, err := os.ReadFile(engine.cachePath)
	require.NoError(t, err)
	fromCache, err := domain.Decode(cached)
	require.NoError(t, err)
	assert.Equal(t, domain.New(), fromCache)
}

// TestLoadSelfHealFailureSwallowed tests that a failed heal still yields an
// empty in-memory portfolio.
func TestLoadSelfHealFailureSwallowed(t *testing.T) {
	docs := newFakeStore()
	docs.seed(FileName, []byte(`not json at all`))
	docs.updateErr = errors.New("store down")

	engine := newTestEngine(t, docs, online())
	p := engine.Load(context.Background())
	assert.Equal(t, domain.New(), p)
}

// TestLoadResetsCorruptCache tests the cache-side reset-to-empty.
func TestLoadResetsCorruptCache(t *testing.T) {
	engine := newTestEngine(t, newFakeStore(), offline())
	require.NoError(t, os.WriteFile(engine.cachePath, []byte(`{{{`), 0o600))

	p := engine.Load(context.Background())
	assert.Equal(t, domain.New(), p)

	cached, err := os.ReadFile(engine.cachePath)
	require.NoError(t, err)
	reset, err := domain.Decode(cached)
	require.NoError(t, err)
	assert.Equal(t, domain.New(), reset)
}

// TestSaveWithoutCredential tests the no-op false result.
func TestSaveWithoutCredential(t *testing.T) {
	docs := newFakeStore()
	engine := newTestEngine(t, docs, offline())

	ok := engine.Save(context.Background(), domain.New())
	assert.False(t, ok)
	assert.Equal(t, 0, docs.updateCalls)
}

// TestSaveWithoutResolvedFile tests save before any successful load.
func TestSaveWithoutResolvedFile(t *testing.T) {
	docs := newFakeStore()
	engine := newTestEngine(t, docs, online())

	ok := engine.Save(context.Background(), domain.New())
	assert.False(t, ok)
	assert.Equal(t, 0, docs.updateCalls)
}

// TestSaveSuccess tests the happy path: conditional write, tag refresh,
// cache advance, client stamp.
func TestSaveSuccess(t *testing.T) {
	docs := newFakeStore()
	id := docs.seed(FileName, mustEncode(t, domain.New()))

	engine := newTestEngine(t, docs, online())
	engine.Load(context.Background())
	tagBefore := engine.etag

	p := domain.New().UpsertLot("NSE:INFY", 1, 100, "2024-01-01")
	ok := engine.Save(context.Background(), p)
	require.True(t, ok)

	saved, err := domain.Decode(docs.files[id].data)
	require.NoError(t, err)
	assert.Equal(t, "test-client", saved.LastModifiedByClient)
	assert.NotEmpty(t, saved.LastModifiedAt)
	require.Len(t, saved.Holdings, 1)

	// Tag advanced and cache matches the remote bytes.
	assert.NotEqual(t, tagBefore, engine.etag)
	cached, err := os.ReadFile(engine.cachePath)
	require.NoError(t, err)
	assert.Equal(t, docs.files[id].data, cached)
}

// TestSaveConflictRetrySucceeds tests exactly-once retry with a refreshed
// version tag.
func TestSaveConflictRetrySucceeds(t *testing.T) {
	docs := newFakeStore()
	id := docs.seed(FileName, mustEncode(t, domain.New()))

	engine := newTestEngine(t, docs, online())
	engine.Load(context.Background())

	docs.updateRejects = 1
	p := domain.New().UpsertLot("NSE:INFY", 1, 100, "2024-01-01")
	ok := engine.Save(context.Background(), p)
	require.True(t, ok)
	assert.Equal(t, 2, docs.updateCalls)

	saved, err := domain.Decode(docs.files[id].data)
	require.NoError(t, err)
	assert.Len(t, saved.Holdings, 1)
}

// TestSaveConflictExhausted tests that a second conflict is terminal and
// leaves the cache untouched.
func TestSaveConflictExhausted(t *testing.T) {
	docs := newFakeStore()
	docs.seed(FileName, mustEncode(t, domain.New()))

	engine := newTestEngine(t, docs, online())
	engine.Load(context.Background())

	cacheBefore, err := os.ReadFile(engine.cachePath)
	require.NoError(t, err)

	docs.updateRejects = 2
	ok := engine.Save(context.Background(), domain.New().UpsertLot("NSE:INFY", 1, 100, "2024-01-01"))
	assert.False(t, ok)
	assert.Equal(t, 2, docs.updateCalls)

	cacheAfter, err := os.ReadFile(engine.cachePath)
	require.NoError(t, err)
	assert.Equal(t, cacheBefore, cacheAfter)
}

// TestSaveTransportFailure tests that a non-conflict failure is terminal
// without a retry.
func TestSaveTransportFailure(t *testing.T) {
	docs := newFakeStore()
	docs.seed(FileName, mustEncode(t, domain.New()))

	engine := newTestEngine(t, docs, online())
	engine.Load(context.Background())

	docs.updateErr = errors.New("network down")
	ok := engine.Save(context.Background(), domain.New())
	assert.False(t, ok)
	assert.Equal(t, 1, docs.updateCalls)
}

// TestSaveUnconditionalWithoutTag tests that a missing version tag omits the
// precondition rather than failing.
func TestSaveUnconditionalWithoutTag(t *testing.T) {
	docs := newFakeStore()
	docs.seed(FileName, mustEncode(t, domain.New()))
	docs.metaErr = errors.New("metadata unavailable")

	engine := newTestEngine(t, docs, online())
	engine.Load(context.Background())
	require.Empty(t, engine.etag)

	ok := engine.Save(context.Background(), domain.New())
	assert.True(t, ok)
}

func mustEncode(t *testing.T, p domain.Portfolio) []byte {
	t.Helper()
	data, err := domain.Encode(p)
	require.NoError(t, err)
	return data
}

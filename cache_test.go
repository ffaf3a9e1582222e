package akavache

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"akavache/blobstore"
	akaconfig "akavache/config"
	"akavache/crypt"
	"akavache/download"
	akaerrors "akavache/errors"
	"akavache/internal/clock"
	"akavache/serializer"
	"akavache/typed"
)

func newTestBuilder(t *testing.T, c clock.Clock) *Builder {
	t.Helper()
	cfg := akaconfig.Default("TestApp")
	cfg.CacheDirectory = t.TempDir()
	cfg.IndexFlushDebounce = 5 * time.Millisecond
	return NewBuilder(cfg).WithClock(c)
}

// xorProtector is a deterministic Protector test double, so the Secure
// store can be exercised without an OS keyring.
type xorProtector struct{}

func (xorProtector) xor(in []byte) []byte {
	out := make([]byte, len(in))
	for i, b := range in {
		out[i] = b ^ 0x5a
	}
	return out
}

func (p xorProtector) Protect(_ context.Context, plaintext []byte, _ crypt.Scope) ([]byte, error) {
	return p.xor(plaintext), nil
}

func (p xorProtector) Unprotect(_ context.Context, ciphertext []byte) ([]byte, error) {
	return p.xor(ciphertext), nil
}

func TestInsertGet_RoundTripsOnEveryStoreKind(t *testing.T) {
	for _, kind := range []StoreKind{UserAccount, LocalMachine, Secure, InMemory} {
		kind := kind
		t.Run("", func(t *testing.T) {
			ctx := context.Background()
			b := newTestBuilder(t, clock.RealClock{}).WithProtector(xorProtector{})
			cache, err := b.Build(ctx, kind)
			require.NoError(t, err)
			defer cache.Dispose(ctx)

			require.NoError(t, cache.Insert(ctx, "greeting", []byte("hello"), nil))
			got, err := cache.Get(ctx, "greeting")
			require.NoError(t, err)
			assert.Equal(t, "hello", string(got))
		})
	}
}

func TestInsertGet_EmptyValueRoundTrips(t *testing.T) {
	ctx := context.Background()
	cache, err := newTestBuilder(t, clock.RealClock{}).Build(ctx, InMemory)
	require.NoError(t, err)
	defer cache.Dispose(ctx)

	require.NoError(t, cache.Insert(ctx, "k", []byte{}, nil))
	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestInsertGet_LargeValueRoundTrips(t *testing.T) {
	ctx := context.Background()
	cache, err := newTestBuilder(t, clock.RealClock{}).Build(ctx, InMemory)
	require.NoError(t, err)
	defer cache.Dispose(ctx)

	big := make([]byte, 16*1024*1024)
	_, rerr := rand.Read(big)
	require.NoError(t, rerr)

	require.NoError(t, cache.Insert(ctx, "big", big, nil))
	got, err := cache.Get(ctx, "big")
	require.NoError(t, err)
	assert.True(t, bytes.Equal(big, got))
}

func TestInsertGet_KeyWithEveryPrintableASCIICharRoundTrips(t *testing.T) {
	ctx := context.Background()
	cache, err := newTestBuilder(t, clock.RealClock{}).Build(ctx, InMemory)
	require.NoError(t, err)
	defer cache.Dispose(ctx)

	var key bytes.Buffer
	for c := byte(0x20); c <= 0x7e; c++ {
		key.WriteByte(c)
	}

	require.NoError(t, cache.Insert(ctx, key.String(), []byte("v"), nil))
	got, err := cache.Get(ctx, key.String())
	require.NoError(t, err)
	assert.Equal(t, "v", string(got))
}

func TestGet_ExpiredEntryIsKeyNotFoundAndOmittedFromAllKeys(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cache, err := newTestBuilder(t, mock).Build(ctx, InMemory)
	require.NoError(t, err)
	defer cache.Dispose(ctx)

	require.NoError(t, cache.Insert(ctx, "k", []byte("v"), mock.Now().Add(10*time.Millisecond)))
	mock.Advance(20 * time.Millisecond)

	_, err = cache.Get(ctx, "k")
	assert.True(t, akaerrors.IsKeyNotFound(err))

	keys, err := cache.GetAllKeys(ctx, "")
	require.NoError(t, err)
	assert.NotContains(t, keys, "k")
}

func TestInsertInvalidate_FinalKeySetIsDifference(t *testing.T) {
	ctx := context.Background()
	cache, err := newTestBuilder(t, clock.RealClock{}).Build(ctx, InMemory)
	require.NoError(t, err)
	defer cache.Dispose(ctx)

	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, cache.Insert(ctx, k, []byte("v"), nil))
	}
	require.NoError(t, cache.Invalidate(ctx, "b"))
	require.NoError(t, cache.Invalidate(ctx, "d"))

	keys, err := cache.GetAllKeys(ctx, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "c"}, keys)
}

func TestInvalidate_TwiceIsEquivalentToOnce(t *testing.T) {
	ctx := context.Background()
	cache, err := newTestBuilder(t, clock.RealClock{}).Build(ctx, InMemory)
	require.NoError(t, err)
	defer cache.Dispose(ctx)

	require.NoError(t, cache.Insert(ctx, "k", []byte("v"), nil))
	require.NoError(t, cache.Invalidate(ctx, "k"))
	require.NoError(t, cache.Invalidate(ctx, "k"))

	_, err = cache.Get(ctx, "k")
	assert.True(t, akaerrors.IsKeyNotFound(err))
}

func TestInsertMany_GetManyReturnsEveryPair(t *testing.T) {
	ctx := context.Background()
	cache, err := newTestBuilder(t, clock.RealClock{}).Build(ctx, InMemory)
	require.NoError(t, err)
	defer cache.Dispose(ctx)

	pairs := map[string][]byte{"a": []byte("1"), "b": []byte("2"), "c": []byte("3")}
	require.NoError(t, cache.InsertMany(ctx, pairs, nil))

	got, err := cache.GetMany(ctx, []string{"a", "b", "c", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 3)
	for k, v := range pairs {
		assert.Equal(t, v, got[k])
	}
}

func TestGet_ConcurrentCallsObserveIdenticalBytes(t *testing.T) {
	ctx := context.Background()
	cache, err := newTestBuilder(t, clock.RealClock{}).Build(ctx, InMemory)
	require.NoError(t, err)
	defer cache.Dispose(ctx)

	require.NoError(t, cache.Insert(ctx, "k", []byte("shared"), nil))

	var wg sync.WaitGroup
	results := make([][]byte, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			data, gerr := cache.Get(ctx, "k")
			require.NoError(t, gerr)
			results[idx] = data
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "shared", string(r))
	}
}

func TestDispose_RejectsFurtherOperationsWithDisposed(t *testing.T) {
	ctx := context.Background()
	cache, err := newTestBuilder(t, clock.RealClock{}).Build(ctx, InMemory)
	require.NoError(t, err)

	require.NoError(t, cache.Dispose(ctx))

	_, err = cache.Get(ctx, "k")
	assert.True(t, akaerrors.IsDisposed(err))
}

func TestFlush_AfterDisposeReturnsDisposedError(t *testing.T) {
	ctx := context.Background()
	cache, err := newTestBuilder(t, clock.RealClock{}).Build(ctx, InMemory)
	require.NoError(t, err)

	require.NoError(t, cache.Dispose(ctx))

	err = cache.Flush(ctx)
	assert.True(t, akaerrors.IsDisposed(err))
}

func TestDispose_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	cache, err := newTestBuilder(t, clock.RealClock{}).Build(ctx, InMemory)
	require.NoError(t, err)

	require.NoError(t, cache.Dispose(ctx))
	require.NoError(t, cache.Dispose(ctx))
}

func TestReopen_ObservesLastFlushedStateAfterDispose(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := akaconfig.Default("AppA")
	cfg.CacheDirectory = dir

	cache1, err := NewBuilder(cfg).Build(ctx, LocalMachine)
	require.NoError(t, err)
	require.NoError(t, cache1.Insert(ctx, "greeting", []byte("hello"), nil))
	require.NoError(t, cache1.Dispose(ctx))

	cache2, err := NewBuilder(cfg).Build(ctx, LocalMachine)
	require.NoError(t, err)
	defer cache2.Dispose(ctx)

	got, err := cache2.Get(ctx, "greeting")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestExternalChangeWatch_ReloadsIndexWrittenByAnotherCache(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := akaconfig.Default("SharedApp")
	cfg.CacheDirectory = dir
	cfg.IndexFlushDebounce = time.Millisecond

	writer, err := NewBuilder(cfg).Build(ctx, LocalMachine)
	require.NoError(t, err)
	defer writer.Dispose(ctx)

	reader, err := NewBuilder(cfg).Build(ctx, LocalMachine)
	require.NoError(t, err)
	defer reader.Dispose(ctx)

	require.NoError(t, writer.Insert(ctx, "shared", []byte("v1"), nil))
	require.NoError(t, writer.Flush(ctx))

	require.Eventually(t, func() bool {
		_, ok, err := reader.GetCreatedAt(ctx, "shared")
		return err == nil && ok
	}, 2*time.Second, 20*time.Millisecond, "reader never observed writer's flushed index")
}

func TestSecureStore_OnDiskPayloadDoesNotEqualPlaintext(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := akaconfig.Default("SecureApp")
	cfg.CacheDirectory = dir

	cache, err := NewBuilder(cfg).Build(ctx, Secure)
	if err != nil {
		t.Skipf("secure store unavailable in this environment: %v", err)
	}
	defer cache.Dispose(ctx)

	plaintext := `{"user":"u","pass":"p"}`
	require.NoError(t, cache.Insert(ctx, "login:default", []byte(plaintext), nil))

	raw, err := os.ReadFile(filepath.Join(dir, blobstore.Digest("login:default")))
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, string(raw))

	got, err := cache.Get(ctx, "login:default")
	require.NoError(t, err)
	assert.Equal(t, plaintext, string(got))
}

func TestUpdateExpiration_LeavesCreatedAtAndPayloadUnchanged(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cache, err := newTestBuilder(t, mock).Build(ctx, InMemory)
	require.NoError(t, err)
	defer cache.Dispose(ctx)

	require.NoError(t, cache.Insert(ctx, "k", []byte("a"), nil))
	createdBefore, _, err := cache.GetCreatedAt(ctx, "k")
	require.NoError(t, err)

	require.NoError(t, cache.UpdateExpiration(ctx, "k", mock.Now().Add(time.Hour)))

	createdAfter, ok, err := cache.GetCreatedAt(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, createdBefore, createdAfter)

	got, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "a", string(got))
}

func TestVacuum_RemovesExpiredEntriesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cache, err := newTestBuilder(t, mock).Build(ctx, LocalMachine)
	require.NoError(t, err)
	defer cache.Dispose(ctx)

	require.NoError(t, cache.Insert(ctx, "expired", []byte("v"), mock.Now().Add(time.Millisecond)))
	require.NoError(t, cache.Insert(ctx, "live", []byte("v"), nil))
	mock.Advance(time.Second)

	require.NoError(t, cache.Vacuum(ctx))
	require.NoError(t, cache.Vacuum(ctx))

	keys, err := cache.GetAllKeys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, keys)
}

type loginRecord struct {
	User string
	Pass string
}

func TestTyped_InsertObjectGetObjectRoundTrips(t *testing.T) {
	ctx := context.Background()
	cache, err := newTestBuilder(t, clock.RealClock{}).Build(ctx, InMemory)
	require.NoError(t, err)
	defer cache.Dispose(ctx)

	layer := cache.Typed(serializer.NewJSONSerializer())
	require.NoError(t, typed.InsertObject(ctx, layer, "login:default", loginRecord{User: "u", Pass: "p"}, nil))

	got, err := typed.GetObject[loginRecord](ctx, layer, "login:default")
	require.NoError(t, err)
	assert.Equal(t, loginRecord{User: "u", Pass: "p"}, got)
}

// singleCallTransport is a minimal http.RoundTripper test double that
// counts invocations, so DownloadUrl's coalescing can be verified
// through the public Downloader() seam without a real HTTP server.
type singleCallTransport struct {
	calls int32
}

func (s *singleCallTransport) RoundTrip(*http.Request) (*http.Response, error) {
	atomic.AddInt32(&s.calls, 1)
	time.Sleep(5 * time.Millisecond)
	return &http.Response{
		StatusCode: 200,
		Status:     "200 OK",
		Body:       io.NopCloser(bytes.NewBufferString("downloaded")),
		Header:     make(http.Header),
	}, nil
}

func TestDownloader_ConcurrentCallsCoalesceIntoOneRequest(t *testing.T) {
	ctx := context.Background()
	cache, err := newTestBuilder(t, clock.RealClock{}).Build(ctx, InMemory)
	require.NoError(t, err)
	defer cache.Dispose(ctx)

	transport := &singleCallTransport{}
	dl := cache.Downloader(&http.Client{Transport: transport}, time.Second, 0)

	var wg sync.WaitGroup
	results := make([][]byte, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			data, derr := dl.DownloadUrl(ctx, "dl-key", "http://example/x", nil, download.DownloadOptions{})
			require.NoError(t, derr)
			results[idx] = data
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&transport.calls))
	for _, r := range results {
		assert.Equal(t, "downloaded", string(r))
	}
}

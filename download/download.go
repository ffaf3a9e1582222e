// Package download implements the HttpMemoizer:
// DownloadUrl, a cache-backed HTTP request (GET by default) that
// coalesces concurrent requests for the same cache key and retries
// transient failures.
package download

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	akaerrors "akavache/errors"
	"akavache/internal/coalescer"
)

// urlTypeTag is the coalescer type-tag for download identities, kept
// distinct from typed-object tags and the raw byte tag.
const urlTypeTag = "http-download"

// RawCache is the subset of the engine DownloadUrl needs.
type RawCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Insert(ctx context.Context, key string, data []byte, absoluteExpiration interface{}) error
}

// Doer is satisfied by *http.Client; accepting the interface lets tests
// substitute a fake transport without spinning up a server.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DownloadOptions customizes a single DownloadUrl call. The zero value
// is GET, no extra headers, cache-first.
type DownloadOptions struct {
	// Method defaults to GET when empty.
	Method string
	// Headers are added to the outgoing request, if any.
	Headers http.Header
	// FetchAlways forces the HTTP request even when key already has a
	// live cache entry, overwriting it with the new response.
	FetchAlways bool
}

// Memoizer is the HttpMemoizer collaborator: it fetches a URL's body at
// most once per cache entry, sharing in-flight fetches across
// concurrent callers via the engine's RequestCoalescer.
type Memoizer struct {
	cache     RawCache
	client    Doer
	coalescer *coalescer.Coalescer
	timeout   time.Duration
	retries   int
}

// New creates a Memoizer. timeout bounds a single attempt; retries is
// the number of additional attempts after the first, backed off
// exponentially via cenkalti/backoff/v5. Both are used as given: a
// timeout of 0 sets no per-attempt timeout. Cache.Downloader is what
// substitutes the 15s / 3-retry defaults.
func New(cache RawCache, client Doer, c *coalescer.Coalescer, timeout time.Duration, retries int) *Memoizer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Memoizer{cache: cache, client: client, coalescer: c, timeout: timeout, retries: retries}
}

// DownloadUrl returns url's cached body under key if present and live,
// unless opts.FetchAlways is set. On a miss (or when FetchAlways forces
// one) it issues a request (retried up to m.retries times on transport
// error or 5xx), stores the response body under key with
// absoluteExpiration — overwriting any existing entry — and returns it.
// A non-success status is an HttpFailure and never populates the cache,
// leaving a prior cached entry, if any, unchanged.
func (m *Memoizer) DownloadUrl(ctx context.Context, key, url string, absoluteExpiration interface{}, opts DownloadOptions) ([]byte, error) {
	if !opts.FetchAlways {
		if data, err := m.cache.Get(ctx, key); err == nil {
			return data, nil
		} else if !akaerrors.IsKeyNotFound(err) {
			return nil, err
		}
	}

	data, err, _ := m.coalescer.Do(urlTypeTag, key, func() ([]byte, error) {
		body, fetchErr := m.fetch(ctx, url, opts)
		if fetchErr != nil {
			return nil, fetchErr
		}
		if insertErr := m.cache.Insert(ctx, key, body, absoluteExpiration); insertErr != nil {
			return nil, insertErr
		}
		return body, nil
	})
	return data, err
}

func (m *Memoizer) fetch(ctx context.Context, url string, opts DownloadOptions) ([]byte, error) {
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	op := func() ([]byte, error) {
		reqCtx := ctx
		var cancel context.CancelFunc
		if m.timeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, m.timeout)
			defer cancel()
		}

		req, err := http.NewRequestWithContext(reqCtx, method, url, nil)
		if err != nil {
			return nil, akaerrors.Wrap(akaerrors.HttpFailure, url, "failed to build request", err)
		}
		for k, vs := range opts.Headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := m.client.Do(req)
		if err != nil {
			return nil, akaerrors.Wrap(akaerrors.HttpFailure, url, "transport error", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return nil, akaerrors.New(akaerrors.HttpFailure, url, "server error: "+resp.Status)
		}
		if resp.StatusCode >= 400 {
			return nil, backoff.Permanent(akaerrors.New(akaerrors.HttpFailure, url, "client error: "+resp.Status))
		}

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, resp.Body); err != nil {
			return nil, akaerrors.Wrap(akaerrors.HttpFailure, url, "failed to read body", err)
		}
		return buf.Bytes(), nil
	}

	return backoff.Retry(ctx, op, backoff.WithMaxTries(uint(m.retries+1)))
}

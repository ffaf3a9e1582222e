package akavache

import (
	"net/http"
	"time"

	"akavache/download"
	"akavache/serializer"
	"akavache/typed"
)

var (
	_ typed.RawCache    = (*Cache)(nil)
	_ download.RawCache = (*Cache)(nil)
)

// Typed returns a TypedObjectLayer over this cache, using s to
// (de)serialize values and sharing this cache's RequestCoalescer so
// GetOrFetchObject stampedes coalesce the same way raw Get does.
func (c *Cache) Typed(s serializer.Serializer) *typed.Layer {
	return typed.New(c, s, c.coalesce)
}

// Downloader returns an HttpMemoizer over this cache, using client for
// requests (nil defaults to http.DefaultClient) and timeout/retries for
// DownloadUrl's per-attempt budget. A timeout of 0 or a
// negative retries value falls back to the documented defaults of 15s
// and 3 retries.
func (c *Cache) Downloader(client *http.Client, timeout time.Duration, retries int) *download.Memoizer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if retries < 0 {
		retries = 3
	}
	var doer download.Doer = http.DefaultClient
	if client != nil {
		doer = client
	}
	return download.New(c, doer, c.coalesce, timeout, retries)
}

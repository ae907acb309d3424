package config

import (
	"zipfetch/fetchers"
	"zipfetch/fetchers/httpfetch"
	"zipfetch/fetchers/local"
)

// NewFetcher wires the fetch section into a scheme router. Local sources
// are routed when LocalRoot is set or allowLocal is true.
func (c *Config) NewFetcher(allowLocal bool) (fetchers.Fetcher, error) {
	timeout, err := c.FetchTimeout()
	if err != nil {
		return nil, err
	}

	web := httpfetch.New(httpfetch.Options{
		Timeout:     timeout,
		MaxBytes:    c.Fetch.MaxBytes,
		InsecureTLS: c.Fetch.InsecureTLS,
	})
	router := fetchers.NewRouter().
		Handle("http", web).
		Handle("https", web)

	if allowLocal || c.Fetch.LocalRoot != "" {
		disk := local.New(local.Options{Root: c.Fetch.LocalRoot, MaxBytes: c.Fetch.MaxBytes})
		router.Handle("file", disk).Handle("", disk)
	}

	if c.Fetch.CacheEntries > 0 {
		return fetchers.NewCached(router, c.Fetch.CacheEntries)
	}
	return router, nil
}

package verify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/stancewatch/internal/model"
)

const maxBodySize = 1 << 20

// HTTPFetcher queries JSON providers configured per category. Provider URLs
// are templates: {query} is replaced query-escaped, {path} is replaced with
// each slash-separated segment path-escaped.
type HTTPFetcher struct {
	providers map[model.DataCategory][]string
	client    *http.Client
	now       func() time.Time
}

// NewHTTPFetcher creates an HTTPFetcher. A nil client uses a default one;
// per-call timeouts come from FetchOptions.
func NewHTTPFetcher(providers map[model.DataCategory][]string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{
		providers: providers,
		client:    client,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type sourceResult struct {
	url  string
	data map[string]any
	asOf time.Time
	err  error
}

// Fetch queries up to opts.MaxSources providers concurrently. The result is
// OK when at least one provider answered; Data comes from the first
// provider in configuration order that did.
func (f *HTTPFetcher) Fetch(ctx context.Context, category model.DataCategory, query string, opts FetchOptions) (FetchResult, error) {
	templates := f.providers[category]
	if len(templates) == 0 {
		return FetchResult{Err: fmt.Sprintf("no provider configured for %s", category)}, nil
	}
	if opts.MaxSources > 0 && len(templates) > opts.MaxSources {
		templates = templates[:opts.MaxSources]
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	results := make([]sourceResult, len(templates))
	var g errgroup.Group
	for i, tmpl := range templates {
		g.Go(func() error {
			results[i] = f.get(ctx, expand(tmpl, query))
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return FetchResult{}, fmt.Errorf("fetch %s: %w", category, err)
	}

	var out FetchResult
	var errs []string
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err.Error())
			continue
		}
		if !out.OK {
			out.OK = true
			out.Data = r.data
			out.AsOf = r.asOf
		}
		out.Citations = append(out.Citations, r.url)
	}
	if !out.OK {
		out.Err = strings.Join(errs, "; ")
	}
	return out, nil
}

func (f *HTTPFetcher) get(ctx context.Context, rawURL string) sourceResult {
	res := sourceResult{url: rawURL}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		res.err = fmt.Errorf("build request: %w", err)
		return res
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "stancewatch-verify")

	resp, err := f.client.Do(req)
	if err != nil {
		res.err = fmt.Errorf("%s: %w", hostOf(rawURL), err)
		return res
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		res.err = fmt.Errorf("%s: HTTP %d", hostOf(rawURL), resp.StatusCode)
		return res
	}

	var data map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(&data); err != nil {
		res.err = fmt.Errorf("%s: decode: %w", hostOf(rawURL), err)
		return res
	}
	res.data = data
	res.asOf = f.asOf(data, resp.Header)
	return res
}

// asOf prefers the provider's own timestamp, then the Date header.
func (f *HTTPFetcher) asOf(data map[string]any, h http.Header) time.Time {
	if s := stringField(data, "as_of", "timestamp", "updated_at"); s != "" {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
	}
	if d := h.Get("Date"); d != "" {
		if t, err := http.ParseTime(d); err == nil {
			return t
		}
	}
	return f.now()
}

func expand(tmpl, query string) string {
	segments := strings.Split(strings.TrimSpace(query), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	out := strings.ReplaceAll(tmpl, "{path}", strings.Join(segments, "/"))
	return strings.ReplaceAll(out, "{query}", url.QueryEscape(strings.TrimSpace(query)))
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "provider"
	}
	return u.Host
}

package nws

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/nwspush/nwspush/internal/config"
)

// CacheToken holds the conditional-cache validators from the last successful
// response of one feed URL.
type CacheToken struct {
	ETag         string
	LastModified string
}

// StatusError is returned when the feed answers with a non-success,
// non-not-modified status.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Status, e.URL)
}

// Page is one fetched page of the active-alerts feed.
type Page struct {
	Index int
	URL   string
	Doc   *AlertCollection
}

// Client fetches the active-alerts feed and affected-zone resources. It keeps
// per-URL cache tokens so unchanged pages cost a 304 instead of a full body.
type Client struct {
	http      *http.Client
	alertsURL string
	query     url.Values
	userAgent string
	accept    string
	tokens    map[string]CacheToken
	log       zerolog.Logger
}

func NewClient(cfg *config.Config) *Client {
	query := url.Values{}
	if cfg.RegionType != "" {
		query.Set("region_type", cfg.RegionType)
	}
	if cfg.MessageType != "" {
		query.Set("message_type", cfg.MessageType)
	}

	return &Client{
		http:      &http.Client{Timeout: cfg.RequestTimeout},
		alertsURL: cfg.AlertsURL,
		query:     query,
		userAgent: cfg.UserAgent,
		accept:    cfg.Accept,
		tokens:    map[string]CacheToken{},
		log:       zlog.With().Str("component", "nws").Logger(),
	}
}

// FetchJSON performs a conditional GET against rawURL. When the server
// reports no change the previous token is returned unchanged along with
// notModified=true and v is left untouched; the caller must not treat that as
// an error.
func (c *Client) FetchJSON(ctx context.Context, rawURL string, token CacheToken, v any) (CacheToken, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return token, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", c.accept)
	if token.ETag != "" {
		req.Header.Set("If-None-Match", token.ETag)
	}
	if token.LastModified != "" {
		req.Header.Set("If-Modified-Since", token.LastModified)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return token, false, fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return token, true, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return token, false, &StatusError{URL: rawURL, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return token, false, fmt.Errorf("decode %s: %w", rawURL, err)
	}

	return CacheToken{
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
	}, false, nil
}

// ActiveAlertPages walks the paginated active-alerts feed, yielding each page
// to fn. The walk follows pagination.next resolved against the current page
// URL, never revisits a URL within one walk, and stops on the first page the
// server reports unchanged.
func (c *Client) ActiveAlertPages(ctx context.Context, fn func(Page) error) error {
	pageURL := c.alertsURL
	visited := map[string]struct{}{}

	for index := 0; ; index++ {
		if _, ok := visited[pageURL]; ok {
			c.log.Warn().Str("url", pageURL).Msg("pagination cycle detected")
			return nil
		}
		visited[pageURL] = struct{}{}

		fetchURL := pageURL
		if index == 0 && len(c.query) > 0 {
			fetchURL = withQuery(pageURL, c.query)
		}

		var doc AlertCollection
		token, notModified, err := c.FetchJSON(ctx, fetchURL, c.tokens[pageURL], &doc)
		if err != nil {
			return fmt.Errorf("page %d: %w", index, err)
		}
		c.tokens[pageURL] = token
		if notModified {
			return nil
		}

		if err := fn(Page{Index: index, URL: pageURL, Doc: &doc}); err != nil {
			return err
		}

		next := doc.Next()
		if next == "" {
			return nil
		}
		resolved, err := resolveRef(pageURL, next)
		if err != nil {
			c.log.Warn().Err(err).Str("next", next).Msg("unresolvable pagination reference")
			return nil
		}
		pageURL = resolved
	}
}

// ZoneGeometries dereferences each affected-zone URL and collects every
// polygonal geometry found, either directly on the resource or on the members
// of a nested feature collection. Failures are per-URL best effort: a bad
// zone reference is logged and skipped.
func (c *Client) ZoneGeometries(ctx context.Context, urls []string) []json.RawMessage {
	var geoms []json.RawMessage
	for _, zurl := range urls {
		var zone zoneResource
		if _, _, err := c.FetchJSON(ctx, zurl, CacheToken{}, &zone); err != nil {
			c.log.Warn().Err(err).Str("zone", zurl).Msg("zone fetch failed")
			continue
		}

		if IsPolygonal(zone.Geometry) {
			geoms = append(geoms, zone.Geometry)
			continue
		}
		for _, feature := range zone.Features {
			if IsPolygonal(feature.Geometry) {
				geoms = append(geoms, feature.Geometry)
			}
		}
	}
	return geoms
}

func withQuery(rawURL string, query url.Values) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	values := u.Query()
	for key, vals := range query {
		for _, v := range vals {
			values.Set(key, v)
		}
	}
	u.RawQuery = values.Encode()
	return u.String()
}

func resolveRef(base, ref string) (string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

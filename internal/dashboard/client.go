// Package dashboard drives the push dashboard's web form workflow: session
// management, hidden-field harvesting, and the push submission itself.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/nwspush/nwspush/internal/config"
	"github.com/nwspush/nwspush/internal/geometry"
)

// ErrBadCredentials means the dashboard rejected the configured login; there
// is no point retrying until the credentials change.
var ErrBadCredentials = errors.New("dashboard rejected credentials")

const (
	loginFailureMarker = "Cannot login"
	pushRetryAttempts  = 4
	bodyExcerptLimit   = 500
)

// Result records the outcome of one push submission for diagnostics. OK is
// true only for a redirect into the push-history path.
type Result struct {
	OK       bool
	Status   int
	Location string
	Body     string
}

// Client holds an authenticated session against the push dashboard. Redirects
// are never followed; the workflow reads them as signals.
type Client struct {
	http        *http.Client
	base        *url.URL
	loginPath   string
	sendPath    string
	historyPath string
	login       string
	password    string
	userAgent   string
	clock       clockwork.Clock
	log         zerolog.Logger

	// retryInterval seeds the submission backoff; shortened in tests.
	retryInterval time.Duration
}

func New(cfg *config.Config, clock clockwork.Clock) (*Client, error) {
	if cfg.DashboardBase == "" {
		return nil, errors.New("DASHBOARD_BASE is required")
	}
	base, err := url.Parse(cfg.DashboardBase)
	if err != nil {
		return nil, fmt.Errorf("parse dashboard base: %w", err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &Client{
		http: &http.Client{
			Jar:     jar,
			Timeout: cfg.RequestTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		base:          base,
		loginPath:     cfg.LoginPath,
		sendPath:      cfg.PushSendPath,
		historyPath:   cfg.PushHistoryPath,
		login:         cfg.Login,
		password:      cfg.Password,
		userAgent:     "Mozilla/5.0 (X11; Linux x86_64) Gecko/20100101 Firefox/146.0",
		clock:         clock,
		log:           zlog.With().Str("component", "dashboard").Logger(),
		retryInterval: 2 * time.Second,
	}, nil
}

func (c *Client) absURL(path string) string {
	return strings.TrimRight(c.base.String(), "/") + path
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Origin", c.base.String())
}

// LoggedIn probes the compose page without following redirects. A redirect or
// a body carrying login-form markers means the session is stale; only a 200
// carrying the push-form markers counts as authenticated.
func (c *Client) LoggedIn(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.absURL(c.sendPath), nil)
	if err != nil {
		return false
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return false
	}
	markup := string(body)

	if strings.Contains(markup, `id="form-index"`) ||
		strings.Contains(markup, `name="identification"`) ||
		strings.Contains(markup, `name="login"`) {
		return false
	}

	return strings.Contains(markup, `id="form-push"`) && strings.Contains(markup, `id="zones"`)
}

// Login establishes a fresh session: GET the login page to seed cookies, then
// POST the credentials. A redirect signals success; the known failure marker
// signals a fatal credential error.
func (c *Client) Login(ctx context.Context) error {
	if c.login == "" || c.password == "" {
		return errors.New("missing dashboard credentials")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.absURL(c.loginPath), nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("seed login page: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	form := url.Values{
		"identification": {"true"},
		"login":          {c.login},
		"password":       {c.password},
	}
	req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.absURL(c.loginPath), strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err = c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post credentials: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusOK && strings.Contains(string(body), loginFailureMarker) {
		return ErrBadCredentials
	}
	return fmt.Errorf("unexpected login response: status %d", resp.StatusCode)
}

// hiddenFields fetches the compose page and harvests its hidden inputs.
func (c *Client) hiddenFields(ctx context.Context) (map[string]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.absURL(c.sendPath), nil)
	if err != nil {
		return nil, err
	}
	c.setHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch compose page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("compose page: status %d", resp.StatusCode)
	}

	return parseHiddenInputs(resp.Body), nil
}

// SendPush submits one push. Success is strictly a redirect into the
// push-history path; anything else is reported as a failed Result with
// status, redirect target, and a body excerpt for diagnostics.
func (c *Client) SendPush(ctx context.Context, message string, zones geometry.Payload) (*Result, error) {
	hidden, err := c.hiddenFields(ctx)
	if err != nil {
		return nil, fmt.Errorf("harvest hidden inputs: %w", err)
	}

	zonesJSON, err := json.Marshal(zones)
	if err != nil {
		return nil, fmt.Errorf("encode zones: %w", err)
	}

	form := url.Values{}
	for name, value := range hidden {
		form.Set(name, value)
	}

	now := c.clock.Now()
	form.Set("action", "mod")
	form.Set("type", "simple")
	form.Set("message", message)
	form.Set("linktype", "")
	form.Set("link", "")
	form.Set("pushDate", "now")
	form.Set("picker-date", now.Format("01/02/2006"))
	form.Set("date", now.Format("2006-01-02"))
	form.Set("heure", now.Format("15:04"))
	form.Set("hour-heure", now.Format("15"))
	form.Set("minutes-heure", now.Format("04"))
	form.Set("platform-target-ios", "ios")
	form.Set("platform-target-android", "android")
	form.Set("target", "select")
	form.Set("period_launch", "none")
	form.Set("pwa-target", "all")
	form.Set("pwa-period_launch", "none")
	form.Set("sound", "03")
	form.Set("zones", string(zonesJSON))
	// Honeypot: the field must be present but never populated.
	form.Set("address", "")

	resp, err := c.postWithRetry(ctx, form)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return c.classify(resp), nil
}

// postWithRetry submits the form, retrying timeouts only with exponential
// backoff plus jitter. Other request errors surface immediately.
func (c *Client) postWithRetry(ctx context.Context, form url.Values) (*http.Response, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0.5
	policy.MaxElapsedTime = 0

	var resp *http.Response
	attempt := 0
	operation := func() error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.absURL(c.sendPath), strings.NewReader(form.Encode()))
		if err != nil {
			return backoff.Permanent(err)
		}
		c.setHeaders(req)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Referer", c.absURL(c.sendPath))

		resp, err = c.http.Do(req)
		if err != nil {
			if isTimeout(err) {
				c.log.Error().Int("attempt", attempt).Msg("push submission timed out, retrying")
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithMaxRetries(policy, pushRetryAttempts-1)); err != nil {
		return nil, fmt.Errorf("push submission: %w", err)
	}
	return resp, nil
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// classify reads the submission response into a Result.
func (c *Client) classify(resp *http.Response) *Result {
	result := &Result{
		Status:   resp.StatusCode,
		Location: resp.Header.Get("Location"),
	}

	if resp.StatusCode >= 300 && resp.StatusCode < 400 {
		result.OK = strings.HasPrefix(redirectPath(result.Location), c.historyPath)
		if !result.OK {
			c.log.Error().Int("status", result.Status).Str("location", result.Location).Msg("unexpected push redirect")
		}
		return result
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	excerpt := strings.Join(strings.Fields(string(body)), " ")
	if len(excerpt) > bodyExcerptLimit {
		excerpt = excerpt[:bodyExcerptLimit-3] + "..."
	}
	result.Body = excerpt
	c.log.Error().
		Int("status", result.Status).
		Str("location", result.Location).
		Str("body", result.Body).
		Msg("unexpected push response")
	return result
}

// redirectPath reduces a Location header to its path, tolerating both
// absolute and relative targets.
func redirectPath(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		return location
	}
	return u.Path
}

package dashboard

import (
	"encoding/json"
	"net/http"
	"os"
)

type sessionCookie struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SaveSession flushes the dashboard-host cookies to disk as an opaque blob so
// the next process run can skip a fresh login.
func (c *Client) SaveSession(path string) error {
	cookies := c.http.Jar.Cookies(c.base)
	blob := make([]sessionCookie, 0, len(cookies))
	for _, cookie := range cookies {
		blob = append(blob, sessionCookie{Name: cookie.Name, Value: cookie.Value})
	}

	data, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadSession restores a previously saved cookie blob. A missing or corrupt
// file is non-fatal; the client simply proceeds unauthenticated.
func (c *Client) LoadSession(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		c.log.Debug().Err(err).Str("path", path).Msg("no session to restore")
		return
	}

	var blob []sessionCookie
	if err := json.Unmarshal(data, &blob); err != nil {
		c.log.Warn().Err(err).Str("path", path).Msg("corrupt session blob, ignoring")
		return
	}

	cookies := make([]*http.Cookie, 0, len(blob))
	for _, cookie := range blob {
		cookies = append(cookies, &http.Cookie{Name: cookie.Name, Value: cookie.Value})
	}
	c.http.Jar.SetCookies(c.base, cookies)
}

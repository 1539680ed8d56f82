// Package storage keeps the browser continuity artifact between runs.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Cookie is one persisted browser cookie. The fields are passed back to the
// browser untouched. Attributes the jar does not model (partitionKey,
// priority and the like) are kept in Extra and written back on Save.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// cookieFields type-checks the known attributes without recursing into
// Cookie's own (un)marshalers.
type cookieFields Cookie

var knownCookieKeys = []string{"name", "value", "domain", "path", "expires", "httpOnly", "secure", "sameSite"}

func (c Cookie) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(cookieFields(c))
	if err != nil || len(c.Extra) == 0 {
		return known, err
	}

	merged := make(map[string]json.RawMessage, len(c.Extra)+len(knownCookieKeys))
	for k, v := range c.Extra {
		merged[k] = v
	}
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(merged)
}

func (c *Cookie) UnmarshalJSON(data []byte) error {
	var known cookieFields
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range knownCookieKeys {
		delete(all, k)
	}

	*c = Cookie(known)
	c.Extra = nil
	if len(all) > 0 {
		c.Extra = all
	}
	return nil
}

// CarryExtras copies Extra from previous onto the matching cookies in fresh.
// Cookies match on name, domain and path. The browser reports only the
// attributes it models, so this keeps the rest alive across a save.
func CarryExtras(fresh, previous []Cookie) []Cookie {
	type key struct{ name, domain, path string }
	extras := make(map[key]map[string]json.RawMessage)
	for _, c := range previous {
		if len(c.Extra) > 0 {
			extras[key{c.Name, c.Domain, c.Path}] = c.Extra
		}
	}
	if len(extras) == 0 {
		return fresh
	}

	for i := range fresh {
		if extra, ok := extras[key{fresh[i].Name, fresh[i].Domain, fresh[i].Path}]; ok && fresh[i].Extra == nil {
			fresh[i].Extra = extra
		}
	}
	return fresh
}

// CookieJar reads and writes the cookie file. Writes go through a temp file
// and a rename so a crash never leaves a truncated jar behind.
type CookieJar struct {
	mu       sync.Mutex
	filename string
}

func NewCookieJar(filename string) *CookieJar {
	return &CookieJar{filename: filename}
}

func (j *CookieJar) Path() string {
	return j.filename
}

// Load returns the stored cookies. A missing file yields no cookies and no error.
func (j *CookieJar) Load() ([]Cookie, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie jar: %w", err)
	}

	var cookies []Cookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to decode cookie jar: %w", err)
	}
	return cookies, nil
}

func (j *CookieJar) Save(cookies []Cookie) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if cookies == nil {
		cookies = []Cookie{}
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}

	if dir := filepath.Dir(j.filename); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create cookie dir: %w", err)
		}
	}

	// Write to temp file first for atomicity
	tmpFile := j.filename + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpFile, j.filename)
}

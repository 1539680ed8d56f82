package browser

import (
	"github.com/itsnelsonvargas/ClickTok/internal/storage"
	"github.com/playwright-community/playwright-go"
)

// FromPlaywright converts browser cookies into their stored form.
func FromPlaywright(cookies []playwright.Cookie) []storage.Cookie {
	out := make([]storage.Cookie, 0, len(cookies))
	for _, c := range cookies {
		sc := storage.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		}
		if c.SameSite != nil {
			sc.SameSite = string(*c.SameSite)
		}
		out = append(out, sc)
	}
	return out
}

// ToPlaywright converts stored cookies back into the form the browser accepts.
func ToPlaywright(cookies []storage.Cookie) []playwright.OptionalCookie {
	out := make([]playwright.OptionalCookie, 0, len(cookies))
	for _, c := range cookies {
		oc := playwright.OptionalCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   playwright.String(c.Domain),
			Path:     playwright.String(c.Path),
			HttpOnly: playwright.Bool(c.HTTPOnly),
			Secure:   playwright.Bool(c.Secure),
		}
		if c.Path == "" {
			oc.Path = playwright.String("/")
		}
		if c.Expires > 0 {
			oc.Expires = playwright.Float(c.Expires)
		}
		if c.SameSite != "" {
			sameSite := playwright.SameSiteAttribute(c.SameSite)
			oc.SameSite = &sameSite
		}
		out = append(out, oc)
	}
	return out
}

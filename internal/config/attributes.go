package config

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/vincentbai/lynk-embed/internal/booking"
	"github.com/vincentbai/lynk-embed/internal/pixel"
)

// DefaultSelector is where the booking button mounts when a tag names none.
const DefaultSelector = "#lynk-button"

// EmbedTag is one <script data-academy-id=...> element on a host page.
type EmbedTag struct {
	Src           string
	AcademyID     string
	APIKey        string
	GooglePixel   string
	FacebookPixel string
	GA4ID         string
	Debug         bool
	Selector      string
	Type          string
	ButtonText    string
}

// ErrMissingCredentials marks a tag without academy id or api key.
var ErrMissingCredentials = errors.New("academy-id and api-key are required")

// ParseScriptTags finds every script element carrying data-academy-id.
// Tags without both an academy id and an api key are skipped; the returned
// error joins one ErrMissingCredentials per skipped tag.
func ParseScriptTags(r io.Reader) ([]EmbedTag, error) {
	var (
		tags []EmbedTag
		errs []error
	)
	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				errs = append(errs, fmt.Errorf("parse html: %w", err))
			}
			return tags, errors.Join(errs...)
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if tok.DataAtom != atom.Script {
				continue
			}
			attrs := make(map[string]string, len(tok.Attr))
			for _, a := range tok.Attr {
				attrs[strings.ToLower(a.Key)] = a.Val
			}
			if _, ok := attrs["data-academy-id"]; !ok {
				continue
			}
			tag := tagFromAttrs(attrs)
			if tag.AcademyID == "" || tag.APIKey == "" {
				errs = append(errs, fmt.Errorf("script %q: %w", tag.Src, ErrMissingCredentials))
				continue
			}
			tags = append(tags, tag)
		}
	}
}

func tagFromAttrs(attrs map[string]string) EmbedTag {
	tag := EmbedTag{
		Src:           attrs["src"],
		AcademyID:     attrs["data-academy-id"],
		APIKey:        attrs["data-api-key"],
		GooglePixel:   attrs["data-google-pixel"],
		FacebookPixel: attrs["data-facebook-pixel"],
		GA4ID:         attrs["data-ga4-id"],
		Debug:         attrs["data-debug"] == "true",
		Selector:      attrs["data-selector"],
		Type:          attrs["data-type"],
		ButtonText:    attrs["data-button-text"],
	}
	if tag.Selector == "" {
		tag.Selector = DefaultSelector
	}
	if tag.Type == "" {
		tag.Type = booking.TypeBoth
	}
	return tag
}

// Pixel returns the pixel settings the tag describes.
func (t EmbedTag) Pixel() pixel.Config {
	return pixel.Config{
		AcademyID: t.AcademyID,
		APIKey:    t.APIKey,
		Debug:     t.Debug,
		Pixels: pixel.Pixels{
			Google:          t.GooglePixel,
			GoogleAnalytics: t.GA4ID,
			Facebook:        t.FacebookPixel,
		},
	}
}

// Booking returns the booking widget settings the tag describes.
func (t EmbedTag) Booking() booking.Config {
	return booking.Config{
		AcademyID: t.AcademyID,
		APIKey:    t.APIKey,
		Debug:     t.Debug,
		Type:      t.Type,
	}
}

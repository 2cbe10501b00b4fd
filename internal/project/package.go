// Package project embeds an editable exposé (Markdown and photos) in a rendered PDF and
// recovers it again.
package project

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// Marker identifies PDFs written by Embed. Anything else is a foreign PDF.
	Marker  = "CASTING_EXPOSE_PROJECT"
	Version = "1.0"

	// IndexName is the attachment listing the embedded photos.
	IndexName = "photo_index.json"
)

// Photo is one embedded photo. Image is only set on extracted packages.
type Photo struct {
	Name     string
	Data     []byte
	IsFamily bool
	Selected bool
	Image    image.Image
}

// Package is an extracted project.
type Package struct {
	Marker     string
	Version    string
	Markdown   string
	PhotoCount int
	CreatedAt  time.Time
	Photos     []Photo
	// Skipped lists photos that were listed in the index but could not be read or decoded.
	Skipped []string
}

// Family returns the family photo, if one is flagged.
func (p *Package) Family() (Photo, bool) {
	for _, ph := range p.Photos {
		if ph.IsFamily {
			return ph, true
		}
	}
	return Photo{}, false
}

// subject is the JSON stored in the PDF Info Subject.
type subject struct {
	Marker     string `json:"marker"`
	Version    string `json:"version"`
	Markdown   string `json:"markdown"`
	PhotoCount int    `json:"photo_count"`
	CreatedAt  string `json:"created_at"`
}

// indexEntry describes one photo. Name is the upload name as given; File is the
// attachment holding the bytes. Packages without File store the photo under Name.
type indexEntry struct {
	Name     string `json:"name"`
	File     string `json:"file,omitempty"`
	IsFamily bool   `json:"is_family"`
	Selected bool   `json:"selected"`
}

func (e indexEntry) file() string {
	if e.File != "" {
		return filepath.Base(e.File)
	}
	return filepath.Base(e.Name)
}

// encodeSubject marshals s and escapes non-ASCII runes so the value survives any PDF
// string encoding unchanged.
func encodeSubject(s subject) ([]byte, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return asciiJSON(raw), nil
}

func asciiJSON(raw []byte) []byte {
	var b bytes.Buffer
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		raw = raw[size:]
		switch {
		case r < utf8.RuneSelf:
			b.WriteRune(r)
		case r > 0xFFFF:
			r -= 0x10000
			fmt.Fprintf(&b, `\u%04x\u%04x`, 0xD800+(r>>10), 0xDC00+(r&0x3FF))
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.Bytes()
}

// decodeSubject returns nil unless s is JSON carrying the exact marker.
func decodeSubject(s string) *subject {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var sub subject
	if err := json.Unmarshal([]byte(s), &sub); err != nil {
		return nil
	}
	if sub.Marker != Marker {
		return nil
	}
	return &sub
}

var unsafeExt = regexp.MustCompile(`[^a-z0-9]+`)

// photoName is the name a photo keeps in the package: the base name of the upload,
// unchanged except for a numeric suffix when an earlier photo already uses it.
func photoName(name string, i int, used map[string]bool) string {
	base := strings.TrimSpace(name)
	if k := strings.LastIndexAny(base, `/\`); k >= 0 {
		base = base[k+1:]
	}
	if base == "" || base == "." || base == ".." {
		base = fmt.Sprintf("photo_%d.jpg", i+1)
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	out := base
	for n := 2; used[strings.ToLower(out)]; n++ {
		out = fmt.Sprintf("%s_%d%s", stem, n, ext)
	}
	used[strings.ToLower(out)] = true
	return out
}

// attachmentFile is the attachment ID for the i-th photo. It is ASCII only and never
// collides with IndexName.
func attachmentFile(i int, name string) string {
	ext := unsafeExt.ReplaceAllString(strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")), "")
	if ext == "" {
		ext = "bin"
	}
	return fmt.Sprintf("photo_%03d.%s", i+1, ext)
}

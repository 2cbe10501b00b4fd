// Package render draws the two-page exposé PDF: a summary page and a photo sheet.
package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/thywilljoshua/expose-generator/internal/expose"
	"github.com/thywilljoshua/expose-generator/internal/logging"
)

// Selection is the photo input of the photo sheet. Family may be nil.
type Selection struct {
	Family image.Image
	Photos []image.Image
}

func (s Selection) empty() bool { return s.Family == nil && len(s.Photos) == 0 }

// Renderer produces PDF bytes for a document and a photo selection.
type Renderer interface {
	Render(doc expose.Document, sel Selection) ([]byte, error)
}

const (
	// A4 at 150 dpi.
	pageW = 1240
	pageH = 1754

	margin  = 90
	gap     = 30
	columns = 2

	// MaxSheetPhotos bounds the grid below the family photo.
	MaxSheetPhotos = 6

	wrapAt   = 95
	maxLines = 62
)

const accent = "#2e7d32"

// PDF renders with pdfcpu: every page is an imported image, the summary text is stamped
// on page one.
type PDF struct {
	log *logging.Logger
}

func NewPDF(log *logging.Logger) *PDF {
	if log == nil {
		log = logging.Discard()
	}
	return &PDF{log: log}
}

func (p *PDF) Render(doc expose.Document, sel Selection) ([]byte, error) {
	pages := []image.Image{imaging.New(pageW, pageH, color.White)}
	if !sel.empty() {
		pages = append(pages, PhotoSheet(sel))
	}

	readers := make([]io.Reader, 0, len(pages))
	for i, pg := range pages {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, pg, imaging.JPEG, imaging.JPEGQuality(88)); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", i+1, err)
		}
		readers = append(readers, &buf)
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full
	var base bytes.Buffer
	if err := api.ImportImages(nil, &base, readers, imp, newConfig()); err != nil {
		return nil, fmt.Errorf("import pages: %w", err)
	}

	out := base.Bytes()
	title := expose.PlainText(doc.Title())
	if title == "" {
		title = "Exposé"
	}
	var err error
	out, err = stamp(out, title, fmt.Sprintf(
		"fontname:Helvetica-Bold, points:20, position:tl, offset:45 -40, scalefactor:1 abs, rotation:0, opacity:1, fillcolor:%s, aligntext:l", accent))
	if err != nil {
		return nil, err
	}
	if body := summaryText(doc); body != "" {
		out, err = stamp(out, body,
			"fontname:Helvetica, points:10, position:tl, offset:45 -85, scalefactor:1 abs, rotation:0, opacity:1, fillcolor:#1b1b1b, aligntext:l")
		if err != nil {
			return nil, err
		}
	}
	p.log.Debugf("rendered %d pages, %d sections", len(pages), len(doc.Sections))
	return out, nil
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// stamp writes text onto page one.
func stamp(pdf []byte, text, desc string) ([]byte, error) {
	wm, err := api.TextWatermark(text, desc, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("stamp: %w", err)
	}
	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(pdf), &out, []string{"1"}, wm, newConfig()); err != nil {
		return nil, fmt.Errorf("stamp: %w", err)
	}
	return out.Bytes(), nil
}

// summaryText lays the sections out as plain lines, headings in capitals.
func summaryText(doc expose.Document) string {
	var lines []string
	for i, s := range doc.Sections {
		if i > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, strings.ToUpper(expose.PlainText(s.Title)))
		for _, it := range s.Items {
			txt := expose.PlainText(it.Text)
			prefix, indent := "", ""
			if it.Kind == expose.Bullet {
				prefix, indent = "- ", "  "
			}
			for j, l := range wrap(txt, wrapAt-len(prefix)) {
				if j == 0 {
					lines = append(lines, prefix+l)
				} else {
					lines = append(lines, indent+l)
				}
			}
		}
	}
	if len(lines) > maxLines {
		lines = append(lines[:maxLines-1], "...")
	}
	return strings.Join(lines, "\n")
}

// wrap breaks s at word boundaries so no line exceeds width runes, unless a single
// word is longer.
func wrap(s string, width int) []string {
	words := strings.Fields(s)
	if len(words) == 0 {
		return []string{""}
	}
	var lines []string
	cur := words[0]
	for _, w := range words[1:] {
		if len([]rune(cur))+1+len([]rune(w)) > width {
			lines = append(lines, cur)
			cur = w
			continue
		}
		cur += " " + w
	}
	return append(lines, cur)
}

// PhotoSheet composes page two: the family photo across the top half and up to
// MaxSheetPhotos further photos in a two-column grid below.
func PhotoSheet(sel Selection) image.Image {
	sheet := imaging.New(pageW, pageH, color.White)
	innerW := pageW - 2*margin
	top := margin

	if sel.Family != nil {
		maxH := (pageH - 2*margin) / 2
		fam := imaging.Fit(sel.Family, innerW, maxH, imaging.Lanczos)
		x := margin + (innerW-fam.Bounds().Dx())/2
		sheet = imaging.Paste(sheet, fam, image.Pt(x, top))
		top += fam.Bounds().Dy() + gap
	}

	grid := sel.Photos
	if len(grid) > MaxSheetPhotos {
		grid = grid[:MaxSheetPhotos]
	}
	if len(grid) == 0 {
		return sheet
	}
	rows := (len(grid) + columns - 1) / columns
	cellW := (innerW - (columns-1)*gap) / columns
	cellH := (pageH - margin - top - (rows-1)*gap) / rows
	if cellH > cellW {
		cellH = cellW * 3 / 4
	}
	if cellH < 1 {
		return sheet
	}
	for i, ph := range grid {
		cell := imaging.Fill(ph, cellW, cellH, imaging.Center, imaging.Lanczos)
		x := margin + (i%columns)*(cellW+gap)
		y := top + (i/columns)*(cellH+gap)
		sheet = imaging.Paste(sheet, cell, image.Pt(x, y))
	}
	return sheet
}

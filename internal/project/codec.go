package project

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/thywilljoshua/expose-generator/internal/logging"
	"github.com/thywilljoshua/expose-generator/internal/photos"
)

var ErrEmptyPDF = errors.New("empty pdf")

// Codec writes and reads the project package of a PDF.
type Codec struct {
	log *logging.Logger
	now func() time.Time
}

type Option func(*Codec)

func WithLogger(l *logging.Logger) Option {
	return func(c *Codec) {
		if l != nil {
			c.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

func NewCodec(opts ...Option) *Codec {
	c := &Codec{log: logging.Discard(), now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

func newConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Embed stores markdown and photos in pdf. Pages are not touched: the package goes into
// the Info Subject and the photos plus photo_index.json become file attachments.
// Photo names are kept as given, apart from directories and a suffix for repeated names;
// only the first family flag is kept.
func (c *Codec) Embed(pdf []byte, markdown string, list []Photo) (out []byte, err error) {
	if len(pdf) == 0 {
		return nil, ErrEmptyPDF
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("embed project: pdf library panic: %v", r)
		}
	}()

	dir, err := os.MkdirTemp("", "exposegen-embed-*")
	if err != nil {
		return nil, fmt.Errorf("embed project: %w", err)
	}
	defer os.RemoveAll(dir)

	index, files, err := writeAttachments(dir, list)
	if err != nil {
		return nil, fmt.Errorf("embed project: %w", err)
	}

	var withFiles bytes.Buffer
	if err := api.AddAttachments(bytes.NewReader(pdf), &withFiles, files, false, newConfig()); err != nil {
		return nil, fmt.Errorf("embed project: add attachments: %w", err)
	}

	sub, err := encodeSubject(subject{
		Marker:     Marker,
		Version:    Version,
		Markdown:   markdown,
		PhotoCount: len(index),
		CreatedAt:  c.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("embed project: %w", err)
	}

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(withFiles.Bytes()), newConfig())
	if err != nil {
		return nil, fmt.Errorf("embed project: read pdf: %w", err)
	}
	if err := setSubject(ctx, string(sub)); err != nil {
		return nil, fmt.Errorf("embed project: %w", err)
	}

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("embed project: write pdf: %w", err)
	}
	c.log.Infof("embedded project: %d photos, %d bytes of markdown", len(index), len(markdown))
	return buf.Bytes(), nil
}

// writeAttachments writes the photos and the index into dir, returning the index and
// the attachment file paths in order.
func writeAttachments(dir string, list []Photo) ([]indexEntry, []string, error) {
	used := map[string]bool{}
	index := make([]indexEntry, 0, len(list))
	files := make([]string, 0, len(list)+1)
	family := false
	for i, p := range list {
		name := photoName(p.Name, i, used)
		file := attachmentFile(i, name)
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, p.Data, 0o600); err != nil {
			return nil, nil, err
		}
		isFamily := p.IsFamily && !family
		family = family || isFamily
		index = append(index, indexEntry{Name: name, File: file, IsFamily: isFamily, Selected: p.Selected})
		files = append(files, path)
	}

	raw, err := json.Marshal(index)
	if err != nil {
		return nil, nil, err
	}
	path := filepath.Join(dir, IndexName)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, nil, err
	}
	return index, append(files, path), nil
}

func setSubject(ctx *model.Context, s string) error {
	if ctx.Info == nil {
		ir, err := ctx.IndRefForNewObject(types.Dict{})
		if err != nil {
			return fmt.Errorf("create info dict: %w", err)
		}
		ctx.Info = ir
	}
	d, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil || d == nil {
		return fmt.Errorf("info dict: %v", err)
	}
	d["Subject"] = types.NewHexLiteral([]byte(s))
	return nil
}

// Extract recovers the package embedded by Embed. It returns nil for anything that is
// not such a package: unreadable PDFs, a missing or non-JSON subject, a wrong marker.
// Photos that cannot be read or decoded are skipped and listed in Package.Skipped.
func (c *Codec) Extract(pdf []byte) (pkg *Package) {
	if len(pdf) == 0 {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			c.log.Warnf("extract project: pdf library panic: %v", r)
			pkg = nil
		}
	}()

	sub := c.readSubject(pdf)
	if sub == nil {
		return nil
	}
	pkg = &Package{
		Marker:     sub.Marker,
		Version:    sub.Version,
		Markdown:   sub.Markdown,
		PhotoCount: sub.PhotoCount,
	}
	if t, err := time.Parse(time.RFC3339, sub.CreatedAt); err == nil {
		pkg.CreatedAt = t
	}

	dir, err := os.MkdirTemp("", "exposegen-extract-*")
	if err != nil {
		c.log.Warnf("extract project: %v", err)
		return pkg
	}
	defer os.RemoveAll(dir)

	if err := api.ExtractAttachments(bytes.NewReader(pdf), dir, nil, newConfig()); err != nil {
		c.log.Warnf("extract project: attachments: %v", err)
		return pkg
	}
	raw, err := os.ReadFile(filepath.Join(dir, IndexName))
	if err != nil {
		c.log.Warnf("extract project: no %s, importing text only", IndexName)
		return pkg
	}
	var index []indexEntry
	if err := json.Unmarshal(raw, &index); err != nil {
		c.log.Warnf("extract project: bad %s: %v", IndexName, err)
		return pkg
	}

	family := false
	for _, e := range index {
		data, err := os.ReadFile(filepath.Join(dir, e.file()))
		if err != nil {
			c.log.Warnf("extract project: photo %s missing: %v", e.Name, err)
			pkg.Skipped = append(pkg.Skipped, e.Name)
			continue
		}
		img, err := photos.Decode(data)
		if err != nil {
			c.log.Warnf("extract project: skipping photo %s: %v", e.Name, err)
			pkg.Skipped = append(pkg.Skipped, e.Name)
			continue
		}
		isFamily := e.IsFamily && !family
		family = family || isFamily
		pkg.Photos = append(pkg.Photos, Photo{
			Name:     e.Name,
			Data:     data,
			IsFamily: isFamily,
			Selected: e.Selected,
			Image:    img,
		})
	}
	return pkg
}

// readSubject returns the package subject of pdf, or nil.
func (c *Codec) readSubject(pdf []byte) *subject {
	ctx, err := api.ReadContext(bytes.NewReader(pdf), newConfig())
	if err != nil {
		c.log.Debugf("extract project: not a readable pdf: %v", err)
		return nil
	}
	if ctx.Info == nil {
		return nil
	}
	d, err := ctx.DereferenceDict(*ctx.Info)
	if err != nil || d == nil {
		return nil
	}
	obj, ok := d.Find("Subject")
	if !ok || obj == nil {
		return nil
	}
	s, err := ctx.DereferenceStringOrHexLiteral(obj, model.V10, nil)
	if err != nil {
		return nil
	}
	return decodeSubject(s)
}

// PageCount reports the number of pages of pdf.
func PageCount(pdf []byte) (int, error) {
	ctx, err := api.ReadContext(bytes.NewReader(pdf), newConfig())
	if err != nil {
		return 0, err
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return 0, err
	}
	return ctx.PageCount, nil
}

// Package docs turns uploaded files into the text and images the extraction step needs.
package docs

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/thywilljoshua/expose-generator/internal/ai"
	"github.com/thywilljoshua/expose-generator/internal/logging"
	"github.com/thywilljoshua/expose-generator/internal/photos"
	"github.com/thywilljoshua/expose-generator/internal/project"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindImage
	KindPDF
	KindDOCX
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindPDF:
		return "pdf"
	case KindDOCX:
		return "docx"
	case KindText:
		return "text"
	}
	return "unknown"
}

// DetectKind looks at the extension first and falls back to sniffing the content.
func DetectKind(name string, data []byte) Kind {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tif", ".tiff":
		return KindImage
	case ".pdf":
		return KindPDF
	case ".docx":
		return KindDOCX
	case ".txt", ".md", ".markdown", ".eml", ".csv":
		return KindText
	}
	switch {
	case bytes.HasPrefix(data, []byte("%PDF-")):
		return KindPDF
	case strings.HasPrefix(photos.MIMEType(data), "image/"):
		return KindImage
	case strings.HasPrefix(photos.MIMEType(data), "text/"):
		return KindText
	}
	return KindUnknown
}

// File is one upload.
type File struct {
	Name string
	Data []byte
}

// ReadFiles loads paths from disk.
func ReadFiles(paths []string) ([]File, error) {
	files := make([]File, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, File{Name: filepath.Base(p), Data: data})
	}
	return files, nil
}

// Embedded is an uploaded PDF that already carries a project package.
type Embedded struct {
	Name    string
	Package *project.Package
}

// Bundle is what the extraction step consumes.
type Bundle struct {
	// Text holds the extracted text of all documents, each under a "--- name ---" header.
	Text string
	// Images are scans and photos of documents, plus PDFs without a text layer which
	// are sent to the model as-is.
	Images   []ai.Image
	Projects []Embedded
	Pages    int
}

// Loader classifies and reads uploads.
type Loader struct {
	codec *project.Codec
	log   *logging.Logger
}

func NewLoader(codec *project.Codec, log *logging.Logger) *Loader {
	if log == nil {
		log = logging.Discard()
	}
	return &Loader{codec: codec, log: log}
}

// Load reads every document upload. Unlike photos, an unreadable document is fatal: the
// error names the file.
func (l *Loader) Load(files []File, extraText string) (*Bundle, error) {
	b := &Bundle{}
	var texts []string
	if t := strings.TrimSpace(extraText); t != "" {
		texts = append(texts, t)
	}

	for _, f := range files {
		kind := DetectKind(f.Name, f.Data)
		l.log.Debugf("loading %s as %s (%d bytes)", f.Name, kind, len(f.Data))
		switch kind {
		case KindImage:
			img, err := imageForModel(f)
			if err != nil {
				return nil, err
			}
			b.Images = append(b.Images, img)
			b.Pages++

		case KindPDF:
			if l.codec != nil {
				if pkg := l.codec.Extract(f.Data); pkg != nil {
					l.log.Infof("%s carries an exposé project", f.Name)
					b.Projects = append(b.Projects, Embedded{Name: f.Name, Package: pkg})
					continue
				}
			}
			pages := PageCount(f.Data)
			text, err := PDFText(f.Data)
			if err != nil {
				// Some writers produce files the text parser rejects; the model can still
				// read them as long as the PDF itself is sound.
				n, perr := project.PageCount(f.Data)
				if perr != nil {
					return nil, fmt.Errorf("read %s: %w", f.Name, err)
				}
				l.log.Warnf("%s: %v", f.Name, err)
				pages, text = n, ""
			}
			b.Pages += pages
			if strings.TrimSpace(text) == "" {
				l.log.Infof("%s has no text layer, sending the scan", f.Name)
				b.Images = append(b.Images, ai.Image{Name: f.Name, MIMEType: "application/pdf", Data: f.Data})
				continue
			}
			texts = append(texts, section(f.Name, AlignedTables(text)))

		case KindDOCX:
			text, err := DOCXText(f.Data)
			if err != nil {
				return nil, fmt.Errorf("read %s: %w", f.Name, err)
			}
			texts = append(texts, section(f.Name, text))
			b.Pages++

		case KindText:
			texts = append(texts, section(f.Name, string(f.Data)))

		default:
			return nil, fmt.Errorf("read %s: unsupported file type", f.Name)
		}
	}
	b.Text = strings.Join(texts, "\n\n")
	return b, nil
}

func section(name, text string) string {
	return fmt.Sprintf("--- %s ---\n%s", name, strings.TrimSpace(text))
}

func imageForModel(f File) (ai.Image, error) {
	img, err := photos.Decode(f.Data)
	if err != nil {
		return ai.Image{}, fmt.Errorf("read %s: %w", f.Name, err)
	}
	data, err := photos.EncodeJPEG(img)
	if err != nil {
		return ai.Image{}, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return ai.Image{Name: f.Name, MIMEType: "image/jpeg", Data: data}, nil
}

// Photo is a decoded photo upload for the photo sheet.
type Photo struct {
	Name  string
	Data  []byte
	Image image.Image
}

// LoadPhotos decodes photo uploads. Photos are optional, so unreadable ones are skipped
// and their names returned.
func (l *Loader) LoadPhotos(files []File) ([]Photo, []string) {
	var (
		out     []Photo
		skipped []string
	)
	for _, f := range files {
		img, err := photos.Decode(f.Data)
		if err != nil {
			l.log.Warnf("skipping photo %s: %v", f.Name, err)
			skipped = append(skipped, f.Name)
			continue
		}
		out = append(out, Photo{Name: f.Name, Data: f.Data, Image: img})
	}
	return out, skipped
}

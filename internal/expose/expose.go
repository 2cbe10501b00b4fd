// Package expose parses the structured Markdown returned by the extraction step.
package expose

import (
	"strings"
)

type ItemKind int

const (
	Text ItemKind = iota
	Bullet
)

func (k ItemKind) String() string {
	if k == Bullet {
		return "bullet"
	}
	return "text"
}

// Item is one line of a section. Inline markup such as **bold** is kept verbatim.
type Item struct {
	Kind ItemKind `json:"kind"`
	Text string   `json:"text"`
}

type Section struct {
	Title string `json:"title"`
	Items []Item `json:"items"`
}

type Document struct {
	FamilyName string    `json:"family_name"`
	City       string    `json:"city"`
	Sections   []Section `json:"sections"`
}

// TitleDelimiter separates family name and city on the title line.
const TitleDelimiter = "|"

// Parse scans markdown line by line. It never fails: input that does not follow the
// expected shape simply yields fewer fields.
//
//   - blank lines and "---" are skipped
//   - the first "# " line sets FamilyName and City, later ones are ignored
//   - "## " opens a section
//   - "- " and "* " add a bullet, any other line adds a text item
//   - lines before the first section are dropped
func Parse(markdown string) Document {
	var (
		doc      Document
		cur      *Section
		titleSet bool
	)
	markdown = strings.ReplaceAll(markdown, "\r\n", "\n")
	for _, raw := range strings.Split(markdown, "\n") {
		line := strings.TrimSpace(raw)
		switch {
		case line == "" || line == "---":
			continue
		case isHeading(line, "#"):
			if !titleSet {
				doc.FamilyName, doc.City = splitTitle(strings.TrimPrefix(line, "#"))
				titleSet = true
			}
		case isHeading(line, "##"):
			if cur != nil {
				doc.Sections = append(doc.Sections, *cur)
			}
			cur = &Section{Title: strings.TrimSpace(strings.TrimPrefix(line, "##"))}
		case cur == nil:
			continue
		case line == "-" || strings.HasPrefix(line, "- ") || strings.HasPrefix(line, "* "):
			cur.Items = append(cur.Items, Item{Kind: Bullet, Text: strings.TrimSpace(line[1:])})
		default:
			cur.Items = append(cur.Items, Item{Kind: Text, Text: line})
		}
	}
	if cur != nil {
		doc.Sections = append(doc.Sections, *cur)
	}
	return doc
}

// isHeading reports whether the trimmed line is a heading of exactly this level. A
// heading with an empty title trims down to the bare marker.
func isHeading(line, marker string) bool {
	return line == marker || strings.HasPrefix(line, marker+" ") || strings.HasPrefix(line, marker+"\t")
}

func splitTitle(s string) (name, city string) {
	name, city, _ = strings.Cut(s, TitleDelimiter)
	return strings.TrimSpace(name), strings.TrimSpace(city)
}

// Title is the title line without the leading "# ".
func (d Document) Title() string {
	switch {
	case d.City == "":
		return d.FamilyName
	case d.FamilyName == "":
		return TitleDelimiter + " " + d.City
	}
	return d.FamilyName + " " + TitleDelimiter + " " + d.City
}

// Markdown renders d in the canonical form Parse reads back.
func (d Document) Markdown() string {
	var b strings.Builder
	if t := d.Title(); t != "" {
		b.WriteString("# " + t + "\n")
	}
	for _, s := range d.Sections {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## " + s.Title + "\n")
		for _, it := range s.Items {
			if it.Kind == Bullet {
				b.WriteString("- ")
			}
			b.WriteString(it.Text + "\n")
		}
	}
	return b.String()
}

// Empty reports whether nothing usable was parsed.
func (d Document) Empty() bool {
	return d.FamilyName == "" && d.City == "" && len(d.Sections) == 0
}

// Section returns the first section whose title matches, ignoring case.
func (d Document) Section(title string) (Section, bool) {
	for _, s := range d.Sections {
		if strings.EqualFold(s.Title, title) {
			return s, true
		}
	}
	return Section{}, false
}

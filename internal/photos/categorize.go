package photos

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/thywilljoshua/expose-generator/internal/ai"
	"github.com/thywilljoshua/expose-generator/internal/logging"
)

type Category int

const (
	CategoryOther Category = iota
	CategoryFamily
	CategoryGarden
	CategoryHouse
)

func (c Category) String() string {
	switch c {
	case CategoryFamily:
		return "FAMILY"
	case CategoryGarden:
		return "GARDEN"
	case CategoryHouse:
		return "HOUSE"
	default:
		return "OTHER"
	}
}

// ParseCategory accepts the English names and the German labels the prompt asks for.
func ParseCategory(s string) (Category, bool) {
	switch strings.ToUpper(strings.Trim(strings.TrimSpace(s), "*_`")) {
	case "FAMILY", "FAMILIE", "FAMILIENFOTO":
		return CategoryFamily, true
	case "GARDEN", "GARTEN":
		return CategoryGarden, true
	case "HOUSE", "HAUS":
		return CategoryHouse, true
	case "OTHER", "SONSTIGES", "ANDERES":
		return CategoryOther, true
	}
	return CategoryOther, false
}

const DefaultCategorizePrompt = `Du siehst nummerierte Fotos einer Bewerberfamilie.
Ordne jedes Foto genau einer Kategorie zu: FAMILIE, GARTEN, HAUS oder SONSTIGES.
Antworte mit einer Zeile pro Foto im Format:
NUMMER|KATEGORIE|kurze Beschreibung
Keine weiteren Zeilen.`

// Categorization is the outcome of Categorize. Indices refer to the input slice.
// Garden holds every non-duplicate photo that is not the family photo, in input order;
// house and other photos are page-2 candidates too and only differ in Labels.
type Categorization struct {
	Garden     []int
	Family     int
	Duplicates []int
	Labels     map[int]Category
	// Degraded is set when the categorization call failed and the defaults were used.
	Degraded bool
}

// HasFamily reports whether a primary family photo was elected.
func (c Categorization) HasFamily() bool { return c.Family >= 0 }

type Categorizer struct {
	caller    *ai.Caller
	prompt    string
	hashSize  int
	threshold int
	log       *logging.Logger
}

type CategorizerOption func(*Categorizer)

func WithThreshold(n int) CategorizerOption {
	return func(c *Categorizer) { c.threshold = n }
}

// WithHashSize sets the difference hash grid used for duplicate detection.
func WithHashSize(n int) CategorizerOption {
	return func(c *Categorizer) { c.hashSize = n }
}

func WithCategorizePrompt(p string) CategorizerOption {
	return func(c *Categorizer) {
		if p != "" {
			c.prompt = p
		}
	}
}

func WithLogger(l *logging.Logger) CategorizerOption {
	return func(c *Categorizer) {
		if l != nil {
			c.log = l
		}
	}
}

func NewCategorizer(caller *ai.Caller, opts ...CategorizerOption) *Categorizer {
	c := &Categorizer{
		caller:    caller,
		prompt:    DefaultCategorizePrompt,
		hashSize:  DefaultHashSize,
		threshold: DefaultThreshold,
		log:       logging.Discard(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Categorize de-duplicates imgs, labels the survivors with one AI call and elects the
// family photo. It never fails: without a usable answer all survivors become garden
// candidates and Family is -1.
func (c *Categorizer) Categorize(ctx context.Context, imgs []image.Image) Categorization {
	dups := FindDuplicates(imgs, c.hashSize, c.threshold)
	res := Categorization{
		Family:     -1,
		Duplicates: dups.Sorted(),
		Labels:     map[int]Category{},
	}

	var keep []int
	for i := range imgs {
		if !dups.Has(i) {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return res
	}

	// sent[k] is the original index of the (k+1)-th photo in the request.
	var sent []int
	parts := []ai.Part{ai.TextPart(c.prompt)}
	for _, i := range keep {
		data, err := EncodeJPEG(imgs[i])
		if err != nil {
			c.log.Warnf("categorize: skipping photo %d: %v", i, err)
			continue
		}
		sent = append(sent, i)
		parts = append(parts,
			ai.TextPart(fmt.Sprintf("Foto %d:", len(sent))),
			ai.ImagePart(ai.Image{Name: fmt.Sprintf("photo_%d.jpg", i+1), MIMEType: "image/jpeg", Data: data}),
		)
	}

	var answer string
	var err error
	if len(sent) > 0 && c.caller != nil {
		answer, err = c.safeCall(ctx, parts)
	} else {
		err = fmt.Errorf("nothing to categorize")
	}
	if err != nil {
		c.log.Warnf("categorize: %v, using all photos as garden candidates", err)
		res.Garden = keep
		res.Degraded = true
		return res
	}

	for _, rec := range parseRecords(answer) {
		if rec.index < 1 || rec.index > len(sent) {
			continue
		}
		orig := sent[rec.index-1]
		if _, seen := res.Labels[orig]; seen {
			continue
		}
		res.Labels[orig] = rec.category
		if rec.category == CategoryFamily && res.Family < 0 {
			res.Family = orig
		}
	}
	for _, i := range keep {
		if i != res.Family {
			res.Garden = append(res.Garden, i)
		}
	}
	return res
}

func (c *Categorizer) safeCall(ctx context.Context, parts []ai.Part) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("categorization panicked: %v", r)
		}
	}()
	return c.caller.Call(ctx, parts)
}

type record struct {
	index       int
	category    Category
	description string
}

// parseRecords reads "index|category|description" lines and ignores everything else.
func parseRecords(s string) []record {
	var out []record
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-* ")
		fields := strings.Split(line, "|")
		if len(fields) < 2 {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(fields[0]), "Foto")))
		if err != nil {
			continue
		}
		cat, ok := ParseCategory(fields[1])
		if !ok {
			continue
		}
		rec := record{index: idx, category: cat}
		if len(fields) > 2 {
			rec.description = strings.TrimSpace(strings.Join(fields[2:], "|"))
		}
		out = append(out, rec)
	}
	return out
}

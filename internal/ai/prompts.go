package ai

// Prompts used by the extraction stages. Any empty field falls back to the default.
type Prompts struct {
	Extraction string
	Group      string
	Combine    string
}

const DefaultExtractionPrompt = `Analysiere die folgenden Casting-Unterlagen und extrahiere die wichtigsten Informationen.

Erstelle daraus ein kompaktes Exposé in genau dieser Markdown-Struktur:

# FAMILIENNAME | ORT

## Familienmitglieder
- Name, Alter, Beruf (eine Zeile pro Person)

## Fakten zum Garten
- Größe
- Besonderheiten (Zugang, Haustyp etc.)

## Budget
- X €

## Wünsche für den Garten
- kurze, prägnante Aufzählung

## Die Familie / Hintergrund
2-3 Sätze zur Familie und warum sie den Garten umgestalten wollen.

## Besonderheiten / Notizen
- TV-Erfahrung, Termine, Einschränkungen (falls relevant)

WICHTIG:
- Schreibe auf Deutsch, kurz und prägnant
- Hebe wichtige Begriffe mit **fett** hervor
- Ignoriere Datenschutzerklärungen und rechtliche Texte
- Antworte nur mit dem Markdown, ohne Codeblock`

const DefaultGroupPrompt = `Lies die folgenden Seiten aus Casting-Unterlagen und gib alle enthaltenen Informationen
als einfache Stichpunkte wieder (Namen, Alter, Berufe, Garten, Budget, Wünsche, Hintergrund, Termine).
Keine Formatierung als Exposé, keine Einleitung.`

const DefaultCombinePrompt = `Hier sind Stichpunkte, die aus mehreren Teilen derselben Casting-Unterlagen extrahiert wurden.
Führe sie zusammen, entferne Dopplungen und erstelle daraus das Exposé.`

func (p Prompts) withDefaults() Prompts {
	if p.Extraction == "" {
		p.Extraction = DefaultExtractionPrompt
	}
	if p.Group == "" {
		p.Group = DefaultGroupPrompt
	}
	if p.Combine == "" {
		p.Combine = DefaultCombinePrompt + "\n\n" + p.Extraction
	}
	return p
}

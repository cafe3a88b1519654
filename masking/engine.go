package masking

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/Lucifer7355/pii-anonymizer/anonymize"
)

const defaultNameChunkSize = 500

// Entity is one detected span of the input.
type Entity struct {
	Text     string             `json:"text"`
	Category anonymize.Category `json:"category"`
	Pattern  string             `json:"pattern"`
	Start    int                `json:"start"`
	End      int                `json:"end"`
}

// Engine redacts PII with a regular expression catalogue and the caller's
// list of known names.
type Engine struct {
	patterns      map[anonymize.Category][]Pattern
	nameChunkSize int
}

type EngineOption func(*Engine)

// WithPatterns replaces the catalogue for the given categories.
func WithPatterns(patterns map[anonymize.Category][]Pattern) EngineOption {
	return func(e *Engine) {
		for c, p := range patterns {
			e.patterns[c] = p
		}
	}
}

// WithNameChunkSize caps how many names are compiled into one expression.
func WithNameChunkSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.nameChunkSize = n
		}
	}
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		patterns:      make(map[anonymize.Category][]Pattern, len(DefaultPatterns)),
		nameChunkSize: defaultNameChunkSize,
	}
	for c, p := range DefaultPatterns {
		e.patterns[c] = p
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Anonymize replaces every detected entity with its category placeholder.
// With no option enabled the raw text comes back untouched.
func (e *Engine) Anonymize(ctx context.Context, req anonymize.AnonymizationRequest) (string, error) {
	if !req.Options.Any() {
		return req.RawData, nil
	}

	entities, err := e.Detect(ctx, req.RawData, req.Options, req.NamesList)
	if err != nil {
		return "", err
	}
	return Redact(req.RawData, entities), nil
}

// Detect returns non-overlapping entities for the enabled categories, ordered
// by position.
func (e *Engine) Detect(ctx context.Context, text string, options anonymize.OptionSet, names []string) ([]Entity, error) {
	var found []Entity
	for _, c := range options.EnabledCategories() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c == anonymize.CategoryName {
			found = append(found, e.detectNames(text, names)...)
			continue
		}
		for _, p := range e.patterns[c] {
			for _, loc := range p.Expr.FindAllStringIndex(text, -1) {
				found = append(found, Entity{
					Text:     text[loc[0]:loc[1]],
					Category: c,
					Pattern:  p.Name,
					Start:    loc[0],
					End:      loc[1],
				})
			}
		}
	}
	return resolveOverlaps(found), nil
}

// nameBoundary is any rune that cannot continue a word. RE2's \b only knows
// ASCII, which would split names such as "José".
const nameBoundary = `[^\p{L}\p{M}\p{Nd}_]`

func (e *Engine) detectNames(text string, names []string) []Entity {
	// Padding lets the boundary classes match at either end of the text.
	padded := " " + text + " "

	var found []Entity
	for _, expr := range compileNames(names, e.nameChunkSize) {
		from := 0
		for from < len(padded) {
			loc := expr.FindStringSubmatchIndex(padded[from:])
			if loc == nil {
				break
			}
			start, end := from+loc[2]-1, from+loc[3]-1
			found = append(found, Entity{
				Text:     text[start:end],
				Category: anonymize.CategoryName,
				Pattern:  "names_list",
				Start:    start,
				End:      end,
			})
			// Resume at the trailing boundary so it can lead the next match.
			from += loc[3]
		}
	}
	return found
}

// compileNames builds case-insensitive alternations, longest names first so
// "Mary Ann" wins over "Mary". A longer name that fails the trailing boundary
// falls back to the shorter alternatives at the same position.
func compileNames(names []string, chunkSize int) []*regexp.Regexp {
	seen := make(map[string]bool, len(names))
	cleaned := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		cleaned = append(cleaned, name)
	}
	sort.SliceStable(cleaned, func(i, j int) bool {
		return len(cleaned[i]) > len(cleaned[j])
	})

	var exprs []*regexp.Regexp
	for start := 0; start < len(cleaned); start += chunkSize {
		end := start + chunkSize
		if end > len(cleaned) {
			end = len(cleaned)
		}
		quoted := make([]string, 0, end-start)
		for _, name := range cleaned[start:end] {
			quoted = append(quoted, regexp.QuoteMeta(name))
		}
		exprs = append(exprs, regexp.MustCompile(`(?i)`+nameBoundary+`(`+strings.Join(quoted, "|")+`)`+nameBoundary))
	}
	return exprs
}

func resolveOverlaps(entities []Entity) []Entity {
	sort.SliceStable(entities, func(i, j int) bool {
		if entities[i].Start != entities[j].Start {
			return entities[i].Start < entities[j].Start
		}
		return entities[i].End-entities[i].Start > entities[j].End-entities[j].Start
	})

	kept := make([]Entity, 0, len(entities))
	lastEnd := -1
	for _, ent := range entities {
		if ent.Start < lastEnd {
			continue
		}
		kept = append(kept, ent)
		lastEnd = ent.End
	}
	return kept
}

// Redact rewrites text, swapping each entity for its placeholder. Entities
// must be sorted and non-overlapping, as Detect returns them.
func Redact(text string, entities []Entity) string {
	if len(entities) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	pos := 0
	for _, ent := range entities {
		b.WriteString(text[pos:ent.Start])
		b.WriteString(Placeholders[ent.Category])
		pos = ent.End
	}
	b.WriteString(text[pos:])
	return b.String()
}

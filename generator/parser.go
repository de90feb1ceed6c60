package generator

import (
	"fmt"
	"regexp"
	"strings"
)

// FallbackSlug names the output when the character sheet has no usable
// name line.
const FallbackSlug = "unnamed_character"

const notePrefix = "Adjustment Note: "

var (
	openFencePattern  = regexp.MustCompile("^`{3,}([^\\s`]*)$")
	closeFencePattern = regexp.MustCompile("^`{3,}$")
	nameLinePattern   = regexp.MustCompile(`(?im)^[ \t]*name:(.*)$`)
	slugSeparator     = regexp.MustCompile(`[^a-z0-9]+`)
)

type block struct {
	lang    string
	content string
	line    int
}

// scanBlocks returns the complete fenced blocks of raw in order. If the
// text ends inside a block, the opening line of that block is returned
// as open.
func scanBlocks(raw string) (blocks []block, open int) {
	lines := strings.Split(raw, "\n")
	var (
		inBlock bool
		cur     block
		body    []string
	)
	for i, line := range lines {
		fence := strings.TrimSpace(line)
		if !inBlock {
			if m := openFencePattern.FindStringSubmatch(fence); m != nil {
				inBlock = true
				cur = block{lang: m[1], line: i + 1}
				body = nil
			}
			continue
		}
		if closeFencePattern.MatchString(fence) {
			cur.content = trimOneNewline(strings.Join(body, "\n"))
			blocks = append(blocks, cur)
			inBlock = false
			continue
		}
		body = append(body, line)
	}
	if inBlock {
		return blocks, cur.line
	}
	return blocks, 0
}

func trimOneNewline(s string) string {
	s = strings.TrimPrefix(s, "\n")
	return strings.TrimSuffix(s, "\n")
}

// parseNote reports whether content is a well-formed adjustment note and
// returns its text.
func parseNote(content string) (string, bool) {
	line := strings.TrimSpace(content)
	if strings.Contains(line, "\n") || !strings.HasPrefix(line, notePrefix) {
		return "", false
	}
	note := strings.TrimSpace(strings.TrimPrefix(line, notePrefix))
	if note == "" {
		return "", false
	}
	return note, true
}

// ExtractOne returns the content of the first block in raw, skipping a
// leading adjustment note block.
func ExtractOne(raw string, kind Kind) (string, error) {
	text, _, err := ExtractOneWithNote(raw, kind)
	return text, err
}

// ExtractOneWithNote is ExtractOne that also returns the adjustment note,
// if one preceded the content block.
func ExtractOneWithNote(raw string, kind Kind) (string, string, error) {
	blocks, open := scanBlocks(raw)
	fail := func(reason string) (string, string, error) {
		return "", "", &ParseError{Kind: kind, Reason: reason, Excerpt: excerpt(raw)}
	}
	if len(blocks) == 0 {
		if open > 0 {
			return fail(fmt.Sprintf("unterminated block opened at line %d", open))
		}
		return fail("no block found")
	}

	var note string
	content := blocks[0]
	if n, ok := parseNote(content.content); ok {
		if len(blocks) < 2 {
			if open > 0 {
				return fail(fmt.Sprintf("unterminated block opened at line %d", open))
			}
			return fail("no block found after adjustment note")
		}
		note = n
		content = blocks[1]
	}
	if strings.TrimSpace(content.content) == "" {
		return fail(fmt.Sprintf("block at line %d is empty", content.line))
	}
	return content.content, note, nil
}

// ExtractSequence maps the fenced blocks of raw onto kinds by position.
// raw must hold exactly len(kinds) blocks, optionally preceded by one
// adjustment note block, which is returned separately.
func ExtractSequence(raw string, kinds []Kind) (*AssetMap, string, error) {
	if err := validateSequenceKinds(kinds); err != nil {
		return nil, "", err
	}
	blocks, open := scanBlocks(raw)
	if open > 0 {
		return nil, "", &ParseError{
			Reason:  fmt.Sprintf("unterminated block opened at line %d", open),
			Excerpt: excerpt(raw),
		}
	}

	n, m := len(kinds), len(blocks)
	var note string
	switch m {
	case n:
	case n + 1:
		text, ok := parseNote(blocks[0].content)
		if !ok {
			return nil, "", &ParseError{
				Reason:   fmt.Sprintf("expected %d blocks, found %d: leading block is not a valid adjustment note", n, m),
				Expected: n,
				Found:    m,
				Excerpt:  excerpt(blocks[0].content),
			}
		}
		note = text
		blocks = blocks[1:]
	default:
		return nil, "", &ParseError{
			Reason:   fmt.Sprintf("expected %d blocks, found %d", n, m),
			Expected: n,
			Found:    m,
			Excerpt:  excerpt(raw),
		}
	}

	out := NewAssetMap()
	for i, b := range blocks {
		if strings.TrimSpace(b.content) == "" {
			return nil, "", &ParseError{
				Kind:    kinds[i],
				Reason:  fmt.Sprintf("block %d (line %d) is empty", i+1, b.line),
				Excerpt: excerpt(raw),
			}
		}
		if err := out.Put(kinds[i], b.content); err != nil {
			return nil, "", err
		}
	}
	return out, note, nil
}

func validateSequenceKinds(kinds []Kind) error {
	if len(kinds) == 0 {
		return &ValidationError{Field: "kinds", Msg: "at least one kind is required"}
	}
	seen := make(map[Kind]struct{}, len(kinds))
	for _, k := range kinds {
		if !k.Valid() {
			return &ValidationError{Field: "kinds", Msg: "unknown asset kind " + string(k)}
		}
		if _, dup := seen[k]; dup {
			return &ValidationError{Field: "kinds", Msg: "duplicate asset kind " + string(k)}
		}
		seen[k] = struct{}{}
	}
	return nil
}

// ExtractNameField returns the value of the first "name:" line of a
// character sheet.
func ExtractNameField(sheet string) (string, error) {
	m := nameLinePattern.FindStringSubmatch(sheet)
	if m == nil {
		return "", &ParseError{Kind: KindCharacterSheet, Reason: "no name: line", Excerpt: excerpt(sheet)}
	}
	name := strings.TrimSpace(m[1])
	if name == "" {
		return "", &ParseError{Kind: KindCharacterSheet, Reason: "name: line is empty", Excerpt: excerpt(sheet)}
	}
	return name, nil
}

// Slugify lower-cases name and collapses every run of characters outside
// [a-z0-9] into a single underscore.
func Slugify(name string) string {
	s := slugSeparator.ReplaceAllString(strings.ToLower(name), "_")
	return strings.Trim(s, "_")
}

// DeriveSlug returns the slug for a character sheet, or FallbackSlug with
// the reason it could not be derived.
func DeriveSlug(sheet string) (string, error) {
	name, err := ExtractNameField(sheet)
	if err != nil {
		return FallbackSlug, err
	}
	slug := Slugify(name)
	if slug == "" {
		return FallbackSlug, &ParseError{Kind: KindCharacterSheet, Reason: fmt.Sprintf("name %q has no slug characters", name)}
	}
	return slug, nil
}

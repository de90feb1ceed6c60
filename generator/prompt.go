package generator

import (
	"errors"
	"fmt"
	"strings"
)

// Prompt is the request for one completion.
type Prompt struct {
	System string
	User   string
	// Kind is the asset being requested; empty for the orchestrator prompt.
	// It is metadata only and is not sent to the provider.
	Kind Kind
}

// Blueprints resolves a blueprint name to its template text.
type Blueprints interface {
	Load(name string) (string, error)
}

// Assembler builds prompts from blueprints. It holds no per-run state.
type Assembler struct {
	blueprints Blueprints
}

func NewAssembler(blueprints Blueprints) (*Assembler, error) {
	if blueprints == nil {
		return nil, errors.New("blueprint store is required")
	}
	return &Assembler{blueprints: blueprints}, nil
}

// Build returns the prompt for kind. prior must hold only assets that come
// before kind; they are rendered in generation order.
func (a *Assembler) Build(kind Kind, seed string, mode Mode, prior *AssetMap) (Prompt, error) {
	system, err := a.prepare(kind, seed, prior)
	if err != nil {
		return Prompt{}, err
	}
	var sb strings.Builder
	writeHeader(&sb, seed, mode)
	writePriorAssets(&sb, kind, prior)
	return Prompt{System: system, User: sb.String(), Kind: kind}, nil
}

// BuildRevision returns the prompt that rewrites current, the existing
// text of kind, according to comment.
func (a *Assembler) BuildRevision(kind Kind, seed string, mode Mode, prior *AssetMap, current, comment string) (Prompt, error) {
	system, err := a.prepare(kind, seed, prior)
	if err != nil {
		return Prompt{}, err
	}
	if strings.TrimSpace(comment) == "" {
		return Prompt{}, &ValidationError{Field: "comment", Msg: "revision comment is empty"}
	}
	var sb strings.Builder
	writeHeader(&sb, seed, mode)
	writePriorAssets(&sb, kind, prior)
	sb.WriteString("\n### Current Draft\n\n")
	writeFenced(&sb, current)
	sb.WriteString("\n### Revision Request\n\n")
	sb.WriteString(strings.TrimSpace(comment))
	sb.WriteString("\n")
	return Prompt{System: system, User: sb.String(), Kind: kind}, nil
}

// BuildOrchestrator returns the single prompt that asks for every asset.
func (a *Assembler) BuildOrchestrator(name, seed string, mode Mode) (Prompt, error) {
	if strings.TrimSpace(seed) == "" {
		return Prompt{}, &ValidationError{Field: "seed", Msg: "seed is empty"}
	}
	system, err := a.blueprints.Load(name)
	if err != nil {
		return Prompt{}, err
	}
	var sb strings.Builder
	writeHeader(&sb, seed, mode)
	return Prompt{System: system, User: sb.String()}, nil
}

func (a *Assembler) prepare(kind Kind, seed string, prior *AssetMap) (string, error) {
	if !kind.Valid() {
		return "", &ValidationError{Field: "kind", Msg: "unknown asset kind " + string(kind)}
	}
	if strings.TrimSpace(seed) == "" {
		return "", &ValidationError{Field: "seed", Msg: "seed is empty"}
	}
	for _, k := range prior.Kinds() {
		if k.Index() >= kind.Index() {
			return "", &ValidationError{
				Field: "prior_assets",
				Msg:   fmt.Sprintf("%s cannot be built with knowledge of %s", kind, k),
			}
		}
	}
	return a.blueprints.Load(string(kind))
}

func writeHeader(sb *strings.Builder, seed string, mode Mode) {
	if mode != ModeUnset {
		sb.WriteString("Content Mode: ")
		sb.WriteString(string(mode))
		sb.WriteString("\n")
	}
	sb.WriteString("Seed: ")
	sb.WriteString(strings.TrimSpace(seed))
	sb.WriteString("\n")
}

func writePriorAssets(sb *strings.Builder, kind Kind, prior *AssetMap) {
	assets := prior.Before(kind).Assets()
	if len(assets) == 0 {
		return
	}
	sb.WriteString("\n### Prior Assets\n")
	for _, asset := range assets {
		sb.WriteString(fmt.Sprintf("\n#### %s (%s)\n\n", asset.Kind.Label(), asset.Kind))
		writeFenced(sb, asset.Text)
	}
}

// writeFenced wraps text in a fence longer than any backtick run inside it.
func writeFenced(sb *strings.Builder, text string) {
	fence := strings.Repeat("`", fenceWidth(text))
	sb.WriteString(fence)
	sb.WriteString("\n")
	sb.WriteString(text)
	sb.WriteString("\n")
	sb.WriteString(fence)
	sb.WriteString("\n")
}

func fenceWidth(text string) int {
	longest, run := 0, 0
	for _, r := range text {
		if r == '`' {
			run++
			if run > longest {
				longest = run
			}
			continue
		}
		run = 0
	}
	if longest >= 3 {
		return longest + 1
	}
	return 3
}

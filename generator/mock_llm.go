package generator

import (
	"context"
	"fmt"
	"strings"
)

// MockLLM is an offline client for local runs and tests.
// It answers every asset prompt with one well-formed block and the
// orchestrator prompt with all seven.
type MockLLM struct {
	// Name is written into the character sheet's name line.
	Name string
}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	if prompt.Kind == "" {
		var sb strings.Builder
		for _, k := range order {
			sb.WriteString(m.block(k, prompt))
			sb.WriteString("\n")
		}
		return sb.String(), nil
	}
	return m.block(prompt.Kind, prompt), nil
}

func (m MockLLM) CompleteStream(ctx context.Context, prompt Prompt, onDelta func(chunk string)) (string, error) {
	full, err := m.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}
	if onDelta != nil {
		for _, line := range strings.SplitAfter(full, "\n") {
			if line != "" {
				onDelta(line)
			}
		}
	}
	return full, nil
}

func (m MockLLM) block(k Kind, prompt Prompt) string {
	name := m.Name
	if name == "" {
		name = "Mock Character"
	}
	var body string
	switch k {
	case KindCharacterSheet:
		body = fmt.Sprintf("name: %s\nage: 30\noccupation: placeholder", name)
	case KindIntroPage:
		body = fmt.Sprintf("# %s\n\n*A placeholder intro page.*", name)
	default:
		body = fmt.Sprintf("<%s for %s>", k, seedOf(prompt.User))
	}
	lang := ""
	if k == KindIntroPage {
		lang = "markdown"
	}
	return "```" + lang + "\n" + body + "\n```\n"
}

func seedOf(user string) string {
	for _, line := range strings.Split(user, "\n") {
		if strings.HasPrefix(line, "Seed: ") {
			return strings.TrimPrefix(line, "Seed: ")
		}
	}
	return "seed"
}

package generator

import (
	"errors"
	"strings"
	"testing"

	"character_asset_compiler/blueprint"
)

type mapBlueprints map[string]string

func (m mapBlueprints) Load(name string) (string, error) {
	text, ok := m[name]
	if !ok {
		return "", &blueprint.NotFoundError{Name: name}
	}
	return text, nil
}

func allBlueprints() mapBlueprints {
	m := mapBlueprints{blueprint.Orchestrator: "orchestrator template"}
	for _, k := range Kinds() {
		m[string(k)] = string(k) + " template"
	}
	return m
}

func TestAssemblerBuild(t *testing.T) {
	a, err := NewAssembler(allBlueprints())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	t.Run("first step", func(t *testing.T) {
		p, err := a.Build(KindSystemPrompt, "  a quiet curator ", ModeNSFW, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if p.System != "system_prompt template" {
			t.Fatalf("expected raw template as system text, got %q", p.System)
		}
		if p.User != "Content Mode: NSFW\nSeed: a quiet curator\n" {
			t.Fatalf("unexpected user text %q", p.User)
		}
		if p.Kind != KindSystemPrompt {
			t.Fatalf("unexpected kind %q", p.Kind)
		}
	})

	t.Run("unset mode is omitted", func(t *testing.T) {
		p, err := a.Build(KindSystemPrompt, "seed", ModeUnset, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if strings.Contains(p.User, "Content Mode") {
			t.Fatalf("expected no mode line, got %q", p.User)
		}
	})

	t.Run("prior assets in order", func(t *testing.T) {
		prior, _ := AssetMapFrom([]Asset{
			{Kind: KindSystemPrompt, Text: "SYS"},
			{Kind: KindPostHistory, Text: "POST"},
		})
		p, err := a.Build(KindCharacterSheet, "seed", ModeSFW, prior)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		want := "Content Mode: SFW\nSeed: seed\n" +
			"\n### Prior Assets\n" +
			"\n#### System Prompt (system_prompt)\n\n```\nSYS\n```\n" +
			"\n#### Post-History Instructions (post_history)\n\n```\nPOST\n```\n"
		if p.User != want {
			t.Fatalf("unexpected user text:\n%s", p.User)
		}
	})

	t.Run("later assets are rejected", func(t *testing.T) {
		prior, _ := AssetMapFrom([]Asset{{Kind: KindIntroPage, Text: "PAGE"}})
		_, err := a.Build(KindCharacterSheet, "seed", ModeSFW, prior)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("same kind is rejected", func(t *testing.T) {
		prior, _ := AssetMapFrom([]Asset{{Kind: KindCharacterSheet, Text: "SHEET"}})
		if _, err := a.Build(KindCharacterSheet, "seed", ModeSFW, prior); err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("empty seed", func(t *testing.T) {
		_, err := a.Build(KindSystemPrompt, " \n", ModeSFW, nil)
		var ve *ValidationError
		if !errors.As(err, &ve) || ve.Field != "seed" {
			t.Fatalf("expected seed ValidationError, got %v", err)
		}
	})

	t.Run("unknown kind", func(t *testing.T) {
		_, err := a.Build(Kind("lore"), "seed", ModeSFW, nil)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})

	t.Run("fence outgrows embedded backticks", func(t *testing.T) {
		prior, _ := AssetMapFrom([]Asset{{Kind: KindSystemPrompt, Text: "a\n```\nb"}})
		p, err := a.Build(KindPostHistory, "seed", ModeSFW, prior)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.Contains(p.User, "````\na\n```\nb\n````\n") {
			t.Fatalf("expected a four backtick fence, got %q", p.User)
		}
	})
}

func TestAssemblerMissingBlueprint(t *testing.T) {
	a, _ := NewAssembler(mapBlueprints{})
	_, err := a.Build(KindSystemPrompt, "seed", ModeSFW, nil)
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Name != "system_prompt" {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if ErrorClass(err) != "not_found" {
		t.Fatalf("unexpected class %q", ErrorClass(err))
	}
}

func TestAssemblerRevision(t *testing.T) {
	a, _ := NewAssembler(allBlueprints())
	prior, _ := AssetMapFrom([]Asset{{Kind: KindSystemPrompt, Text: "SYS"}})

	p, err := a.BuildRevision(KindPostHistory, "seed", ModeSFW, prior, "OLD", " make it shorter ")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(p.User, "### Current Draft\n\n```\nOLD\n```\n") {
		t.Fatalf("expected current draft, got %q", p.User)
	}
	if !strings.HasSuffix(p.User, "### Revision Request\n\nmake it shorter\n") {
		t.Fatalf("expected revision request, got %q", p.User)
	}

	if _, err := a.BuildRevision(KindPostHistory, "seed", ModeSFW, prior, "OLD", "  "); err == nil {
		t.Fatalf("expected error for empty comment")
	}
}

func TestAssemblerOrchestrator(t *testing.T) {
	a, _ := NewAssembler(allBlueprints())
	p, err := a.BuildOrchestrator(blueprint.Orchestrator, "seed", ModePlatformSafe)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.Kind != "" || p.System != "orchestrator template" {
		t.Fatalf("unexpected prompt %#v", p)
	}
	if p.User != "Content Mode: Platform-Safe\nSeed: seed\n" {
		t.Fatalf("unexpected user text %q", p.User)
	}
}

package generator

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func fenced(lang, body string) string {
	return "```" + lang + "\n" + body + "\n```\n"
}

func sevenBlocks() string {
	var sb strings.Builder
	for i := range order {
		sb.WriteString(fenced("", fmt.Sprintf("<asset %d>", i)))
	}
	return sb.String()
}

func TestExtractOne(t *testing.T) {
	t.Run("surrounding chatter", func(t *testing.T) {
		raw := "Here you go:\n```\nhello\nworld\n```\nLet me know if you need more."
		text, err := ExtractOne(raw, KindSystemPrompt)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if text != "hello\nworld" {
			t.Fatalf("unexpected text %q", text)
		}
	})

	t.Run("language tag", func(t *testing.T) {
		text, err := ExtractOne(fenced("markdown", "# Title"), KindIntroPage)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if text != "# Title" {
			t.Fatalf("unexpected text %q", text)
		}
	})

	t.Run("fence lines with surrounding whitespace", func(t *testing.T) {
		text, err := ExtractOne("  ```text  \nabc\n  ```  \n", KindSystemPrompt)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if text != "abc" {
			t.Fatalf("unexpected text %q", text)
		}
	})

	t.Run("only one newline trimmed at each end", func(t *testing.T) {
		text, err := ExtractOne("```\n\n\nline\n\n\n```", KindSystemPrompt)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if text != "\nline\n" {
			t.Fatalf("unexpected text %q", text)
		}
	})

	t.Run("first close fence ends the block", func(t *testing.T) {
		text, err := ExtractOne("```\na\n````\nb\n```", KindSystemPrompt)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if text != "a" {
			t.Fatalf("unexpected text %q", text)
		}
	})

	t.Run("adjustment note is skipped", func(t *testing.T) {
		raw := fenced("", "Adjustment Note: softened the tone") + fenced("", "content")
		text, note, err := ExtractOneWithNote(raw, KindIntroScene)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if text != "content" || note != "softened the tone" {
			t.Fatalf("unexpected text %q note %q", text, note)
		}
	})

	t.Run("no block", func(t *testing.T) {
		_, err := ExtractOne("I cannot help with that.", KindIntroScene)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ParseError, got %v", err)
		}
		if pe.Kind != KindIntroScene {
			t.Fatalf("expected kind in error, got %q", pe.Kind)
		}
		if pe.Excerpt != "I cannot help with that." {
			t.Fatalf("unexpected excerpt %q", pe.Excerpt)
		}
	})

	t.Run("unterminated block", func(t *testing.T) {
		_, err := ExtractOne("```\nhalf an answer", KindIntroScene)
		var pe *ParseError
		if !errors.As(err, &pe) || !strings.Contains(pe.Reason, "unterminated") {
			t.Fatalf("expected unterminated ParseError, got %v", err)
		}
	})

	t.Run("empty block", func(t *testing.T) {
		_, err := ExtractOne("```\n\n```", KindIntroScene)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ParseError, got %v", err)
		}
	})

	t.Run("long excerpt is truncated", func(t *testing.T) {
		_, err := ExtractOne(strings.Repeat("é", 1000), KindIntroScene)
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ParseError, got %v", err)
		}
		if got := len([]rune(pe.Excerpt)); got != excerptLimit+3 {
			t.Fatalf("expected truncated excerpt, got %d runes", got)
		}
	})
}

func TestExtractOneRoundTrip(t *testing.T) {
	texts := []string{
		"plain",
		"multi\nline\ntext",
		"  leading and trailing spaces  ",
		"tabs\tand `single` and ``double`` backticks",
		"{{char}} greets {{user}}",
		"ünïcödé ✓",
	}
	for _, text := range texts {
		got, err := ExtractOne("```\n"+text+"\n```", KindSystemPrompt)
		if err != nil {
			t.Fatalf("%q: expected no error, got %v", text, err)
		}
		if got != text {
			t.Fatalf("round trip changed %q into %q", text, got)
		}
	}
}

func TestExtractSequence(t *testing.T) {
	t.Run("seven blocks", func(t *testing.T) {
		m, note, err := ExtractSequence(sevenBlocks(), Kinds())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if note != "" {
			t.Fatalf("expected no note, got %q", note)
		}
		for i, k := range Kinds() {
			text, ok := m.Get(k)
			if !ok || text != fmt.Sprintf("<asset %d>", i) {
				t.Fatalf("%s: unexpected text %q", k, text)
			}
		}
		if !m.IsPrefix() || m.Len() != 7 {
			t.Fatalf("expected all seven kinds in order, got %v", m.Kinds())
		}
	})

	t.Run("leading note is kept out of the assets", func(t *testing.T) {
		plain, _, err := ExtractSequence(sevenBlocks(), Kinds())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		raw := fenced("", "Adjustment Note: kept it SFW") + sevenBlocks()
		withNote, note, err := ExtractSequence(raw, Kinds())
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if note != "kept it SFW" {
			t.Fatalf("unexpected note %q", note)
		}
		for _, a := range withNote.Assets() {
			want, _ := plain.Get(a.Kind)
			if a.Text != want {
				t.Fatalf("%s: expected %q, got %q", a.Kind, want, a.Text)
			}
			if strings.Contains(a.Text, "Adjustment Note") {
				t.Fatalf("note leaked into %s", a.Kind)
			}
		}
	})

	t.Run("count mismatch", func(t *testing.T) {
		for _, n := range []int{0, 1, 6, 9} {
			var sb strings.Builder
			for i := 0; i < n; i++ {
				sb.WriteString(fenced("", "x"))
			}
			_, _, err := ExtractSequence(sb.String(), Kinds())
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("%d blocks: expected ParseError, got %v", n, err)
			}
			if pe.Expected != 7 || pe.Found != n {
				t.Fatalf("%d blocks: expected 7/%d, got %d/%d", n, n, pe.Expected, pe.Found)
			}
		}
	})

	t.Run("eight blocks without a note", func(t *testing.T) {
		raw := fenced("", "extra") + sevenBlocks()
		_, _, err := ExtractSequence(raw, Kinds())
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ParseError, got %v", err)
		}
		if pe.Expected != 7 || pe.Found != 8 {
			t.Fatalf("expected 7/8, got %d/%d", pe.Expected, pe.Found)
		}
	})

	t.Run("whitespace-only block", func(t *testing.T) {
		var sb strings.Builder
		for i, k := range Kinds() {
			body := fmt.Sprintf("<asset %d>", i)
			if k == KindIntroPage {
				body = "  \n\t"
			}
			sb.WriteString(fenced("", body))
		}
		_, _, err := ExtractSequence(sb.String(), Kinds())
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("expected ParseError, got %v", err)
		}
		if pe.Kind != KindIntroPage || !strings.Contains(pe.Reason, "block 5") {
			t.Fatalf("expected intro_page at block 5, got %s %q", pe.Kind, pe.Reason)
		}
	})

	t.Run("malformed note block", func(t *testing.T) {
		notes := map[string]string{
			"empty note text": "Adjustment Note: ",
			"two-line note":   "Adjustment Note: kept it SFW\nand trimmed the intro",
		}
		for name, body := range notes {
			t.Run(name, func(t *testing.T) {
				_, _, err := ExtractSequence(fenced("", body)+sevenBlocks(), Kinds())
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Fatalf("expected ParseError, got %v", err)
				}
				if pe.Expected != 7 || pe.Found != 8 {
					t.Fatalf("expected 7/8, got %d/%d", pe.Expected, pe.Found)
				}
				if !strings.Contains(pe.Reason, "adjustment note") {
					t.Fatalf("unexpected reason %q", pe.Reason)
				}
			})
		}
	})

	t.Run("mapping is positional", func(t *testing.T) {
		raw := fenced("", "second") + fenced("", "first")
		m, _, err := ExtractSequence(raw, []Kind{KindSystemPrompt, KindPostHistory})
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if text, _ := m.Get(KindSystemPrompt); text != "second" {
			t.Fatalf("expected content to follow position, got %q", text)
		}
	})

	t.Run("invalid kinds", func(t *testing.T) {
		_, _, err := ExtractSequence(sevenBlocks(), []Kind{KindSystemPrompt, KindSystemPrompt})
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Fatalf("expected ValidationError, got %v", err)
		}
	})
}

func TestSlug(t *testing.T) {
	t.Run("name line", func(t *testing.T) {
		slug, err := DeriveSlug("age: 41\nname: Maren Voss\noccupation: curator")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if slug != "maren_voss" {
			t.Fatalf("expected maren_voss, got %q", slug)
		}
	})

	t.Run("case insensitive key", func(t *testing.T) {
		name, err := ExtractNameField("  Name:   Dr. Ilse  Ray \n")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if name != "Dr. Ilse  Ray" {
			t.Fatalf("unexpected name %q", name)
		}
		if got := Slugify(name); got != "dr_ilse_ray" {
			t.Fatalf("unexpected slug %q", got)
		}
	})

	t.Run("missing name falls back", func(t *testing.T) {
		slug, err := DeriveSlug("<asset 2>")
		if err == nil {
			t.Fatalf("expected a reason for the fallback")
		}
		if slug != FallbackSlug {
			t.Fatalf("expected %s, got %q", FallbackSlug, slug)
		}
	})

	t.Run("name without slug characters", func(t *testing.T) {
		slug, err := DeriveSlug("name: ???")
		if err == nil || slug != FallbackSlug {
			t.Fatalf("expected fallback, got %q %v", slug, err)
		}
	})
}

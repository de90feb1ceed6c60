package blueprint

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"testing/fstest"
)

func TestFSStoreLoad(t *testing.T) {
	fsys := fstest.MapFS{
		"system_prompt.md": {Data: []byte("sys template")},
		"Intro_Page.MD":    {Data: []byte("page template")},
		"notes.txt":        {Data: []byte("ignored")},
		"nested/x.md":      {Data: []byte("ignored")},
	}
	s := New(fsys)

	t.Run("exact name", func(t *testing.T) {
		text, err := s.Load("system_prompt")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if text != "sys template" {
			t.Fatalf("expected raw template text, got %q", text)
		}
	})

	t.Run("case and extension insensitive", func(t *testing.T) {
		text, err := s.Load("intro_page.md")
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if text != "page template" {
			t.Fatalf("unexpected text %q", text)
		}
	})

	t.Run("missing name", func(t *testing.T) {
		_, err := s.Load("music_prompt")
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("expected NotFoundError, got %v", err)
		}
		if nf.Name != "music_prompt" {
			t.Fatalf("expected name in error, got %q", nf.Name)
		}
	})

	t.Run("names", func(t *testing.T) {
		names, err := s.Names()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !reflect.DeepEqual(names, []string{"intro_page", "system_prompt"}) {
			t.Fatalf("unexpected names: %#v", names)
		}
	})
}

func TestFSStoreCachesFirstRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system_prompt.md")
	if err := os.WriteFile(path, []byte("v1"), 0o600); err != nil {
		t.Fatalf("write template: %v", err)
	}
	s := Dir(dir)
	if text, err := s.Load("system_prompt"); err != nil || text != "v1" {
		t.Fatalf("expected v1, got %q (%v)", text, err)
	}
	if err := os.WriteFile(path, []byte("v2"), 0o600); err != nil {
		t.Fatalf("rewrite template: %v", err)
	}
	if text, _ := s.Load("system_prompt"); text != "v1" {
		t.Fatalf("expected cached v1, got %q", text)
	}
	if text, _ := Dir(dir).Load("system_prompt"); text != "v2" {
		t.Fatalf("expected fresh store to see v2, got %q", text)
	}
}

func TestDirMissing(t *testing.T) {
	s := Dir(filepath.Join(t.TempDir(), "missing"))
	_, err := s.Load("system_prompt")
	if err == nil {
		t.Fatalf("expected error")
	}
	var nf *NotFoundError
	if errors.As(err, &nf) {
		t.Fatalf("expected listing error, got NotFoundError")
	}
}

func TestEmbeddedHasEveryBlueprint(t *testing.T) {
	s := Embedded()
	for _, name := range []string{
		"system_prompt", "post_history", "character_sheet", "intro_scene",
		"intro_page", "image_prompt", "music_prompt", Orchestrator,
	} {
		text, err := s.Load(name)
		if err != nil {
			t.Fatalf("expected embedded %s, got %v", name, err)
		}
		if text == "" {
			t.Fatalf("expected embedded %s to be non-empty", name)
		}
	}
}

func TestOverlay(t *testing.T) {
	primary := New(fstest.MapFS{"system_prompt.md": {Data: []byte("override")}})
	fallback := New(fstest.MapFS{
		"system_prompt.md": {Data: []byte("default")},
		"post_history.md":  {Data: []byte("default post")},
	})
	s := Overlay(primary, fallback)

	if text, _ := s.Load("system_prompt"); text != "override" {
		t.Fatalf("expected override, got %q", text)
	}
	if text, _ := s.Load("post_history"); text != "default post" {
		t.Fatalf("expected fallback, got %q", text)
	}
	var nf *NotFoundError
	if _, err := s.Load("intro_scene"); !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	names, err := s.Names()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !reflect.DeepEqual(names, []string{"post_history", "system_prompt"}) {
		t.Fatalf("unexpected names %#v", names)
	}
}

package publisher

import (
	"bytes"
	"errors"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"

	"character_asset_compiler/generator"
	"character_asset_compiler/logger"
)

const (
	manifestFile = "manifest.yaml"
	htmlFile     = "intro_page.html"
	digestLimit  = 120
)

// Pack is a finished set of assets ready to be written to disk.
type Pack struct {
	Slug   string
	Seed   string
	Mode   generator.Mode
	Note   string
	Assets *generator.AssetMap
}

// Manifest describes a written pack.
type Manifest struct {
	Slug      string         `yaml:"slug"`
	Seed      string         `yaml:"seed"`
	Mode      string         `yaml:"mode,omitempty"`
	Note      string         `yaml:"note,omitempty"`
	Digest    string         `yaml:"digest,omitempty"`
	CreatedAt time.Time      `yaml:"created_at"`
	Files     []ManifestFile `yaml:"files"`
	HTML      string         `yaml:"html,omitempty"`
}

type ManifestFile struct {
	Kind generator.Kind `yaml:"kind"`
	File string         `yaml:"file"`
}

// PackFromRun turns a completed run into a pack.
func PackFromRun(run *generator.Run) (Pack, error) {
	if run == nil || run.State != generator.StateCompleted {
		return Pack{}, errors.New("only completed runs can be published")
	}
	return Pack{Slug: run.Slug, Seed: run.Seed, Mode: run.Mode, Note: run.Note, Assets: run.Assets}, nil
}

// Publisher writes packs under a root directory.
type Publisher struct {
	root       string
	renderHTML bool
	log        *logger.Logger
}

func New(root string, renderHTML bool, log *logger.Logger) (*Publisher, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("packs directory is required")
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Publisher{root: root, renderHTML: renderHTML, log: log}, nil
}

// Write stores pack in a fresh directory <root>/<slug>, appending _2, _3
// and so on when the name is taken, and returns that directory.
func (p *Publisher) Write(pack Pack) (string, error) {
	for _, k := range generator.Kinds() {
		if _, ok := pack.Assets.Get(k); !ok {
			return "", fmt.Errorf("pack is missing %s", k)
		}
	}
	slug := pack.Slug
	if slug == "" {
		slug = generator.FallbackSlug
	}
	if err := os.MkdirAll(p.root, 0o755); err != nil {
		return "", fmt.Errorf("create packs directory: %w", err)
	}
	dir, err := reserveDir(p.root, slug)
	if err != nil {
		return "", err
	}

	m := Manifest{
		Slug:      filepath.Base(dir),
		Seed:      pack.Seed,
		Mode:      string(pack.Mode),
		Note:      pack.Note,
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}
	for _, a := range pack.Assets.Assets() {
		name := string(a.Kind) + a.Kind.Extension()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(a.Text), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", name, err)
		}
		m.Files = append(m.Files, ManifestFile{Kind: a.Kind, File: name})
	}

	page, _ := pack.Assets.Get(generator.KindIntroPage)
	m.Digest = defaultDigest(page, digestLimit)
	if p.renderHTML {
		doc, err := renderPage(m.Slug, page)
		if err != nil {
			return "", fmt.Errorf("render intro page: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dir, htmlFile), []byte(doc), 0o644); err != nil {
			return "", fmt.Errorf("write %s: %w", htmlFile, err)
		}
		m.HTML = htmlFile
	}

	data, err := yaml.Marshal(m)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", manifestFile, err)
	}
	p.log.Info("pack written", "dir", dir, "files", len(m.Files))
	return dir, nil
}

func reserveDir(root, slug string) (string, error) {
	for n := 1; ; n++ {
		name := slug
		if n > 1 {
			name = fmt.Sprintf("%s_%d", slug, n)
		}
		dir := filepath.Join(root, name)
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			return dir, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("create pack directory: %w", err)
		}
	}
}

// Read loads a pack written by Write.
func Read(dir string) (Pack, Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return Pack{}, Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Pack{}, Manifest{}, fmt.Errorf("read manifest: %w", err)
	}

	assets := generator.NewAssetMap()
	for _, f := range m.Files {
		text, err := os.ReadFile(filepath.Join(dir, filepath.Base(f.File)))
		if err != nil {
			return Pack{}, m, fmt.Errorf("read %s: %w", f.File, err)
		}
		if err := assets.Put(f.Kind, string(text)); err != nil {
			return Pack{}, m, err
		}
	}
	if !assets.IsPrefix() {
		return Pack{}, m, fmt.Errorf("pack %s lists assets out of order", dir)
	}
	return Pack{
		Slug:   m.Slug,
		Seed:   m.Seed,
		Mode:   generator.Mode(m.Mode),
		Note:   m.Note,
		Assets: assets,
	}, m, nil
}

func mdToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// renderPage wraps the rendered intro page in a standalone document.
func renderPage(title, md string) (string, error) {
	body, err := mdToHTML(md)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>")
	b.WriteString(html.EscapeString(title))
	b.WriteString("</title>\n</head>\n<body>\n")
	b.WriteString(body)
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

func defaultDigest(md string, limit int) string {
	compact := strings.Fields(md)
	joined := strings.Join(compact, " ")
	runes := []rune(joined)
	if len(runes) <= limit {
		return joined
	}
	return string(runes[:limit])
}

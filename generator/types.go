package generator

import (
	"strings"
)

// Kind identifies one of the seven generated assets.
type Kind string

const (
	KindSystemPrompt   Kind = "system_prompt"
	KindPostHistory    Kind = "post_history"
	KindCharacterSheet Kind = "character_sheet"
	KindIntroScene     Kind = "intro_scene"
	KindIntroPage      Kind = "intro_page"
	KindImagePrompt    Kind = "image_prompt"
	KindMusicPrompt    Kind = "music_prompt"
)

// order is the generation order. An asset may only be built from the
// assets before it.
var order = [...]Kind{
	KindSystemPrompt,
	KindPostHistory,
	KindCharacterSheet,
	KindIntroScene,
	KindIntroPage,
	KindImagePrompt,
	KindMusicPrompt,
}

var kindLabels = map[Kind]string{
	KindSystemPrompt:   "System Prompt",
	KindPostHistory:    "Post-History Instructions",
	KindCharacterSheet: "Character Sheet",
	KindIntroScene:     "Intro Scene",
	KindIntroPage:      "Intro Page",
	KindImagePrompt:    "Image Prompt",
	KindMusicPrompt:    "Music Prompt",
}

// Kinds returns the seven kinds in generation order.
func Kinds() []Kind {
	out := make([]Kind, len(order))
	copy(out, order[:])
	return out
}

// Index returns the position of k in the generation order, or -1.
func (k Kind) Index() int {
	for i, o := range order {
		if o == k {
			return i
		}
	}
	return -1
}

func (k Kind) Valid() bool { return k.Index() >= 0 }

// Extension is the file extension a pack uses for this kind.
func (k Kind) Extension() string {
	if k == KindIntroPage {
		return ".md"
	}
	return ".txt"
}

func (k Kind) Label() string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return string(k)
}

// ParseKind resolves a user supplied kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	k = Kind(strings.ReplaceAll(string(k), "-", "_"))
	if !k.Valid() {
		return "", &ValidationError{Field: "kind", Msg: "unknown asset kind " + strings.TrimSpace(s)}
	}
	return k, nil
}

// Mode is the content mode threaded through every prompt. The pipeline
// never inspects it.
type Mode string

const (
	ModeUnset        Mode = ""
	ModeSFW          Mode = "SFW"
	ModeNSFW         Mode = "NSFW"
	ModePlatformSafe Mode = "Platform-Safe"
)

// ParseMode maps the recognized spellings to their canonical value and
// passes anything else through verbatim.
func ParseMode(s string) Mode {
	trimmed := strings.TrimSpace(s)
	switch strings.ToLower(trimmed) {
	case "":
		return ModeUnset
	case "sfw":
		return ModeSFW
	case "nsfw":
		return ModeNSFW
	case "platform-safe", "platform_safe", "platformsafe":
		return ModePlatformSafe
	default:
		return Mode(trimmed)
	}
}

// Asset is one generated artifact.
type Asset struct {
	Kind Kind   `json:"kind" yaml:"kind"`
	Text string `json:"text" yaml:"text"`
}

// AssetMap is an insertion-ordered map from Kind to text. Entries are
// never replaced once stored.
type AssetMap struct {
	entries []Asset
}

func NewAssetMap() *AssetMap {
	return &AssetMap{}
}

// AssetMapFrom builds a map from assets, rejecting unknown or repeated kinds.
func AssetMapFrom(assets []Asset) (*AssetMap, error) {
	m := NewAssetMap()
	for _, a := range assets {
		if err := m.Put(a.Kind, a.Text); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Put stores text under k.
func (m *AssetMap) Put(k Kind, text string) error {
	if !k.Valid() {
		return &ValidationError{Field: "kind", Msg: "unknown asset kind " + string(k)}
	}
	if _, ok := m.Get(k); ok {
		return &ValidationError{Field: "kind", Msg: "asset " + string(k) + " already stored"}
	}
	m.entries = append(m.entries, Asset{Kind: k, Text: text})
	return nil
}

func (m *AssetMap) Get(k Kind) (string, bool) {
	if m == nil {
		return "", false
	}
	for _, e := range m.entries {
		if e.Kind == k {
			return e.Text, true
		}
	}
	return "", false
}

func (m *AssetMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Kinds returns the stored kinds in insertion order.
func (m *AssetMap) Kinds() []Kind {
	if m == nil {
		return nil
	}
	out := make([]Kind, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e.Kind)
	}
	return out
}

// Assets returns a copy of the entries in insertion order.
func (m *AssetMap) Assets() []Asset {
	if m == nil {
		return nil
	}
	out := make([]Asset, len(m.entries))
	copy(out, m.entries)
	return out
}

// Before returns the entries whose kind comes strictly before k in the
// generation order, listed in that order.
func (m *AssetMap) Before(k Kind) *AssetMap {
	out := NewAssetMap()
	limit := k.Index()
	for _, kind := range order {
		if kind.Index() >= limit {
			break
		}
		if text, ok := m.Get(kind); ok {
			out.entries = append(out.entries, Asset{Kind: kind, Text: text})
		}
	}
	return out
}

// Clone returns an independent copy.
func (m *AssetMap) Clone() *AssetMap {
	return &AssetMap{entries: m.Assets()}
}

// IsPrefix reports whether the map holds exactly the first Len() kinds of
// the generation order, in that order.
func (m *AssetMap) IsPrefix() bool {
	if m == nil {
		return true
	}
	for i, e := range m.entries {
		if i >= len(order) || e.Kind != order[i] {
			return false
		}
	}
	return true
}

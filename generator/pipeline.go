package generator

import (
	"context"
	"errors"
	"strings"

	"character_asset_compiler/blueprint"
	"character_asset_compiler/logger"
)

// State is the lifecycle of one compilation run.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	*s = ParseState(string(b))
	return nil
}

// ParseState is the inverse of State.String.
func ParseState(s string) State {
	switch s {
	case "running":
		return StateRunning
	case "completed":
		return StateCompleted
	case "failed":
		return StateFailed
	default:
		return StateIdle
	}
}

// Run is the outcome of one compilation. When State is StateFailed, Step
// is the failing step, Err the reason, and Assets holds steps 0..Step-1.
type Run struct {
	Seed   string
	Mode   Mode
	State  State
	Step   int
	Assets *AssetMap
	Slug   string
	Note   string
	Err    error
}

// FailedAt returns the failing step, or -1 when the run did not fail.
func (r *Run) FailedAt() int {
	if r.State != StateFailed {
		return -1
	}
	return r.Step
}

// Hooks observe a run's progress. Any field may be nil.
type Hooks struct {
	OnStepStart func(step int, kind Kind)
	OnDelta     func(kind Kind, chunk string)
	OnStepDone  func(step int, kind Kind, text string)
}

// Controller drives compilation runs. It keeps no per-run state, so one
// Controller may serve concurrent runs if its LLMClient allows it.
type Controller struct {
	llm       LLMClient
	assembler *Assembler
	log       *logger.Logger
	stream    bool
	hooks     Hooks
	provider  string
}

type Option func(*Controller)

func WithLogger(l *logger.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// WithStreaming makes the controller use CompleteStream when the client
// supports it. The parser still sees only the complete text.
func WithStreaming(on bool) Option {
	return func(c *Controller) { c.stream = on }
}

func WithHooks(h Hooks) Option {
	return func(c *Controller) { c.hooks = h }
}

// WithProvider labels upstream errors.
func WithProvider(name string) Option {
	return func(c *Controller) { c.provider = name }
}

func NewController(llm LLMClient, blueprints Blueprints, opts ...Option) (*Controller, error) {
	if llm == nil {
		return nil, errors.New("llm client is required")
	}
	assembler, err := NewAssembler(blueprints)
	if err != nil {
		return nil, err
	}
	c := &Controller{llm: llm, assembler: assembler, log: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Compile runs all seven steps for seed.
func (c *Controller) Compile(ctx context.Context, seed string, mode Mode) (*Run, error) {
	return c.Resume(ctx, seed, mode, nil)
}

// Resume continues a run whose assets so far are prefix. prefix must hold
// the first prefix.Len() kinds of the generation order.
func (c *Controller) Resume(ctx context.Context, seed string, mode Mode, prefix *AssetMap) (*Run, error) {
	if prefix == nil {
		prefix = NewAssetMap()
	}
	if !prefix.IsPrefix() {
		return nil, &ValidationError{Field: "prior_assets", Msg: "assets are not a prefix of the generation order"}
	}
	run := &Run{
		Seed:   seed,
		Mode:   mode,
		State:  StateIdle,
		Assets: prefix.Clone(),
		Slug:   FallbackSlug,
	}
	if sheet, ok := run.Assets.Get(KindCharacterSheet); ok {
		c.updateSlug(run, sheet)
	}
	return run, c.execute(ctx, run)
}

func (c *Controller) execute(ctx context.Context, run *Run) error {
	run.State = StateRunning
	for i := run.Assets.Len(); i < len(order); i++ {
		kind := order[i]
		run.Step = i
		if err := ctx.Err(); err != nil {
			return c.fail(run, kind, err)
		}
		if c.hooks.OnStepStart != nil {
			c.hooks.OnStepStart(i, kind)
		}
		c.log.Debug("step started", "step", i, "kind", kind)

		prompt, err := c.assembler.Build(kind, run.Seed, run.Mode, run.Assets.Clone())
		if err != nil {
			return c.fail(run, kind, err)
		}
		raw, err := c.complete(ctx, prompt)
		if err != nil {
			return c.fail(run, kind, err)
		}
		text, note, err := ExtractOneWithNote(raw, kind)
		if err != nil {
			return c.fail(run, kind, err)
		}
		if err := run.Assets.Put(kind, text); err != nil {
			return c.fail(run, kind, err)
		}
		c.recordNote(run, kind, note)
		if kind == KindCharacterSheet {
			c.updateSlug(run, text)
		}

		c.log.Debug("step finished", "step", i, "kind", kind, "bytes", len(text))
		if c.hooks.OnStepDone != nil {
			c.hooks.OnStepDone(i, kind, text)
		}
	}
	run.State = StateCompleted
	run.Step = len(order)
	c.log.Info("run completed", "slug", run.Slug, "assets", run.Assets.Len())
	return nil
}

func (c *Controller) fail(run *Run, kind Kind, err error) error {
	stepErr := &StepError{Step: run.Step, Kind: kind, Err: err}
	run.State = StateFailed
	run.Err = stepErr
	c.log.Error("run failed", "step", run.Step, "kind", kind, "class", ErrorClass(err), "error", err)
	return stepErr
}

func (c *Controller) complete(ctx context.Context, prompt Prompt) (string, error) {
	var (
		raw string
		err error
	)
	if sc, ok := c.llm.(StreamingLLMClient); ok && c.stream {
		raw, err = sc.CompleteStream(ctx, prompt, func(chunk string) {
			if c.hooks.OnDelta != nil {
				c.hooks.OnDelta(prompt.Kind, chunk)
			}
		})
	} else {
		raw, err = c.llm.Complete(ctx, prompt)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &UpstreamError{Provider: c.provider, Err: err}
	}
	return raw, nil
}

func (c *Controller) recordNote(run *Run, kind Kind, note string) {
	if note == "" {
		return
	}
	if run.Note != "" {
		c.log.Warn("dropping extra adjustment note", "kind", kind, "note", note)
		return
	}
	run.Note = note
	c.log.Warn("adjustment note", "kind", kind, "note", note)
}

func (c *Controller) updateSlug(run *Run, sheet string) {
	slug, err := DeriveSlug(sheet)
	if err != nil {
		c.log.Warn("using fallback slug", "slug", slug, "reason", err)
	}
	run.Slug = slug
}

// GenerateStep runs the single step for kind. assets must hold every asset
// before kind; later ones are ignored.
func (c *Controller) GenerateStep(ctx context.Context, kind Kind, seed string, mode Mode, assets *AssetMap) (string, string, error) {
	prior, err := c.priorFor(kind, assets)
	if err != nil {
		return "", "", err
	}
	prompt, err := c.assembler.Build(kind, seed, mode, prior)
	if err != nil {
		return "", "", err
	}
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return "", "", err
	}
	return ExtractOneWithNote(raw, kind)
}

// Revise rewrites the existing text of kind according to comment.
func (c *Controller) Revise(ctx context.Context, kind Kind, seed string, mode Mode, assets *AssetMap, comment string) (string, string, error) {
	current, ok := assets.Get(kind)
	if !ok {
		return "", "", &ValidationError{Field: "kind", Msg: "no " + string(kind) + " asset to revise"}
	}
	prior, err := c.priorFor(kind, assets)
	if err != nil {
		return "", "", err
	}
	prompt, err := c.assembler.BuildRevision(kind, seed, mode, prior, current, comment)
	if err != nil {
		return "", "", err
	}
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return "", "", err
	}
	return ExtractOneWithNote(raw, kind)
}

func (c *Controller) priorFor(kind Kind, assets *AssetMap) (*AssetMap, error) {
	if !kind.Valid() {
		return nil, &ValidationError{Field: "kind", Msg: "unknown asset kind " + string(kind)}
	}
	prior := assets.Before(kind)
	if prior.Len() != kind.Index() {
		return nil, &ValidationError{
			Field: "prior_assets",
			Msg:   "missing assets before " + string(kind),
		}
	}
	return prior, nil
}

// CompileOneShot asks for every asset in a single completion using the
// orchestrator blueprint.
func (c *Controller) CompileOneShot(ctx context.Context, seed string, mode Mode) (*Run, error) {
	run := &Run{Seed: seed, Mode: mode, State: StateRunning, Assets: NewAssetMap(), Slug: FallbackSlug}
	if err := ctx.Err(); err != nil {
		return run, c.fail(run, "", err)
	}
	prompt, err := c.assembler.BuildOrchestrator(blueprint.Orchestrator, seed, mode)
	if err != nil {
		return run, c.fail(run, "", err)
	}
	raw, err := c.complete(ctx, prompt)
	if err != nil {
		return run, c.fail(run, "", err)
	}
	assets, note, err := ExtractSequence(raw, Kinds())
	if err != nil {
		return run, c.fail(run, "", err)
	}
	run.Assets = assets
	run.Note = strings.TrimSpace(note)
	if sheet, ok := assets.Get(KindCharacterSheet); ok {
		c.updateSlug(run, sheet)
	}
	run.State = StateCompleted
	run.Step = len(order)
	return run, nil
}

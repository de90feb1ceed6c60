package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/term"

	"character_asset_compiler/blueprint"
	"character_asset_compiler/config"
	"character_asset_compiler/drafts"
	"character_asset_compiler/generator"
	"character_asset_compiler/logger"
	"character_asset_compiler/publisher"
)

var configPath string

func defaultConfigPath() string {
	if p := os.Getenv("CAC_CONFIG"); p != "" {
		return p
	}
	return config.DefaultPath
}

// app is everything a command needs, built from the config file.
type app struct {
	cfg        *config.Config
	log        *logger.Logger
	blueprints blueprint.Store
	controller *generator.Controller
	drafts     *drafts.Store
	publisher  *publisher.Publisher
}

// loadApp wires the config into a controller. progress receives step
// progress and, when streaming to a terminal, the streamed text.
func loadApp(progress io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, err
	}
	llm, err := buildLLM(cfg.LLM)
	if err != nil {
		return nil, err
	}

	var bps blueprint.Store = blueprint.Embedded()
	if cfg.BlueprintsDir != "" {
		bps = blueprint.Overlay(blueprint.Dir(cfg.BlueprintsDir), bps)
	}

	controller, err := generator.NewController(llm, bps,
		generator.WithLogger(log),
		generator.WithStreaming(cfg.Stream),
		generator.WithProvider(cfg.LLM.Provider),
		generator.WithHooks(progressHooks(progress, cfg.Stream)),
	)
	if err != nil {
		return nil, err
	}
	pub, err := publisher.New(cfg.PacksDir, cfg.RenderIntroHTML(), log)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, blueprints: bps, controller: controller, publisher: pub}, nil
}

// openDrafts opens the run store on first use.
func (a *app) openDrafts() (*drafts.Store, error) {
	if a.drafts != nil {
		return a.drafts, nil
	}
	store, err := drafts.Open(a.cfg.DraftsDB)
	if err != nil {
		return nil, err
	}
	a.drafts = store
	return store, nil
}

func (a *app) close() {
	if a.drafts != nil {
		_ = a.drafts.Close()
	}
	a.log.Sync()
}

func buildLLM(cfg config.LLMConfig) (generator.LLMClient, error) {
	settings := &generator.LLMSettings{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout(),
	}
	switch cfg.Provider {
	case "openai":
		return generator.NewOpenAILLMFromConfig(settings)
	case "deepseek", "openai_compatible":
		// DeepSeek speaks the OpenAI protocol; base_url is required.
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("llm provider %s requires base_url (OpenAI-compatible endpoint)", cfg.Provider)
		}
		return generator.NewOpenAILLMFromConfig(settings)
	case "anthropic":
		return generator.NewAnthropicLLMFromConfig(settings)
	case "mock":
		return generator.MockLLM{}, nil
	default:
		return nil, fmt.Errorf("llm provider %s not supported", cfg.Provider)
	}
}

func progressHooks(w io.Writer, stream bool) generator.Hooks {
	if w == nil {
		return generator.Hooks{}
	}
	total := len(generator.Kinds())
	hooks := generator.Hooks{
		OnStepStart: func(step int, kind generator.Kind) {
			fmt.Fprintf(w, "[%d/%d] %s\n", step+1, total, kind.Label())
		},
	}
	if stream && isTerminal(w) {
		hooks.OnDelta = func(_ generator.Kind, chunk string) {
			fmt.Fprint(w, chunk)
		}
		hooks.OnStepDone = func(int, generator.Kind, string) {
			fmt.Fprintln(w)
		}
	}
	return hooks
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// signalContext is cancelled on interrupt, which stops a run before its
// next step.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

// errRunFailed is returned after the failure has already been reported.
var errRunFailed = errors.New("run failed")

// reportFailure prints the failing step, kind, error class and excerpt.
func reportFailure(w io.Writer, id string, err error) {
	fmt.Fprintf(w, "run %s failed\n", id)
	reportError(w, err)
	var se *generator.StepError
	if errors.As(err, &se) {
		fmt.Fprintf(w, "resume with: cac resume %s\n", id)
	}
}

func reportError(w io.Writer, err error) {
	var se *generator.StepError
	if errors.As(err, &se) {
		if se.Kind != "" {
			fmt.Fprintf(w, "  step:    %d (%s)\n", se.Step, se.Kind)
		} else {
			fmt.Fprintf(w, "  step:    %d\n", se.Step)
		}
	}
	fmt.Fprintf(w, "  class:   %s\n", generator.ErrorClass(err))
	fmt.Fprintf(w, "  error:   %v\n", err)
	var pe *generator.ParseError
	if errors.As(err, &pe) && pe.Excerpt != "" {
		fmt.Fprintf(w, "  excerpt: %s\n", indent(pe.Excerpt, "           "))
	}
}

func indent(s, pad string) string {
	return strings.ReplaceAll(s, "\n", "\n"+pad)
}

// finish stores the session and, when the run completed and publish is
// set, writes its pack. It prints the pack directory to out.
func (a *app) finish(ctx context.Context, out, errOut io.Writer, sess *generator.Session, runErr error, publish bool) error {
	store, err := a.openDrafts()
	if err != nil {
		return err
	}
	if err := store.Save(context.WithoutCancel(ctx), drafts.FromSession(sess)); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	run, _ := sess.Snapshot()
	if runErr != nil {
		reportFailure(errOut, sess.ID, runErr)
		return errRunFailed
	}
	if run.Note != "" {
		fmt.Fprintf(errOut, "adjustment note: %s\n", run.Note)
	}
	if run.State != generator.StateCompleted {
		fmt.Fprintf(errOut, "%d/%d assets; continue with: cac resume %s\n", run.Assets.Len(), len(generator.Kinds()), sess.ID)
		fmt.Fprintln(out, sess.ID)
		return nil
	}
	if !publish {
		fmt.Fprintln(out, sess.ID)
		return nil
	}
	pack, err := publisher.PackFromRun(run)
	if err != nil {
		return err
	}
	dir, err := a.publisher.Write(pack)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, dir)
	return nil
}

// restore loads a stored run into a session. ref is a run id or the
// directory of a written pack, which becomes a new completed run.
func (a *app) restore(ctx context.Context, ref string) (*generator.Session, error) {
	if info, err := os.Stat(filepath.Join(ref, "manifest.yaml")); err == nil && !info.IsDir() {
		return a.restorePack(ref)
	}
	id := ref
	store, err := a.openDrafts()
	if err != nil {
		return nil, err
	}
	rec, err := store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	run, err := rec.Run()
	if err != nil {
		return nil, err
	}
	sess := generator.RestoreSession(rec.ID, run, a.controller)
	sess.History = rec.History
	return sess, nil
}

func (a *app) restorePack(dir string) (*generator.Session, error) {
	pack, _, err := publisher.Read(dir)
	if err != nil {
		return nil, err
	}
	run := &generator.Run{
		Seed:   pack.Seed,
		Mode:   pack.Mode,
		State:  generator.StateCompleted,
		Step:   pack.Assets.Len(),
		Assets: pack.Assets,
		Slug:   pack.Slug,
		Note:   pack.Note,
	}
	if !pack.Assets.IsPrefix() || pack.Assets.Len() != len(generator.Kinds()) {
		run.State = generator.StateFailed
	}
	return generator.RestoreSession(uuid.NewString(), run, a.controller), nil
}

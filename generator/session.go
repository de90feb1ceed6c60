package generator

import (
	"context"
	"sync"
	"time"
)

// Session holds one character's run across compile, resume and revise turns.
type Session struct {
	ID      string
	Seed    string
	Mode    Mode
	Run     *Run
	History []Turn

	mu         sync.Mutex
	controller *Controller
}

// Turn records one action taken on a session.
type Turn struct {
	Action    string    `json:"action"`
	Kind      Kind      `json:"kind,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	State     State     `json:"state"`
	FailedAt  int       `json:"failed_at"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ActionCompile = "compile"
	ActionOneShot = "one_shot"
	ActionResume  = "resume"
	ActionRevise  = "revise"
	ActionStep    = "step"
)

// NewSession returns a session with no run yet.
func NewSession(id, seed string, mode Mode, controller *Controller) *Session {
	return &Session{ID: id, Seed: seed, Mode: mode, controller: controller}
}

// RestoreSession rebuilds a session around a previously stored run.
func RestoreSession(id string, run *Run, controller *Controller) *Session {
	return &Session{ID: id, Seed: run.Seed, Mode: run.Mode, Run: run, controller: controller}
}

// Propose compiles every asset, in one completion when oneShot is set.
func (s *Session) Propose(ctx context.Context, oneShot bool) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		run *Run
		err error
	)
	action := ActionCompile
	if oneShot {
		action = ActionOneShot
		run, err = s.controller.CompileOneShot(ctx, s.Seed, s.Mode)
	} else {
		run, err = s.controller.Compile(ctx, s.Seed, s.Mode)
	}
	if run != nil {
		s.Run = run
	}
	s.appendTurn(action, "", "", err)
	return s.Run, err
}

// Resume continues a failed run from its last completed step.
func (s *Session) Resume(ctx context.Context) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Run == nil {
		return nil, &ValidationError{Field: "run", Msg: "nothing to resume"}
	}
	if s.Run.State == StateCompleted {
		return s.Run, nil
	}
	run, err := s.controller.Resume(ctx, s.Seed, s.Mode, s.Run.Assets)
	if run != nil {
		s.Run = run
	}
	s.appendTurn(ActionResume, "", "", err)
	return s.Run, err
}

// Step generates only the next missing asset of an unfinished run. The
// run stays idle until its last asset is in place.
func (s *Session) Step(ctx context.Context) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Run == nil {
		return nil, &ValidationError{Field: "run", Msg: "nothing to step"}
	}
	if s.Run.State == StateCompleted {
		return s.Run, nil
	}
	if !s.Run.Assets.IsPrefix() || s.Run.Assets.Len() >= len(order) {
		return s.Run, &ValidationError{Field: "prior_assets", Msg: "assets are not a prefix of the generation order"}
	}
	next := s.Run.Assets.Len()
	kind := order[next]
	if err := ctx.Err(); err != nil {
		return s.stepFailed(next, kind, err)
	}
	text, note, err := s.controller.GenerateStep(ctx, kind, s.Seed, s.Mode, s.Run.Assets)
	if err != nil {
		return s.stepFailed(next, kind, err)
	}

	run := &Run{
		Seed:   s.Seed,
		Mode:   s.Mode,
		State:  StateIdle,
		Step:   next + 1,
		Assets: s.Run.Assets.Clone(),
		Slug:   s.Run.Slug,
		Note:   s.Run.Note,
	}
	if err := run.Assets.Put(kind, text); err != nil {
		return s.stepFailed(next, kind, err)
	}
	if run.Note == "" {
		run.Note = note
	}
	if kind == KindCharacterSheet {
		s.controller.updateSlug(run, text)
	}
	if run.Assets.Len() == len(order) {
		run.State = StateCompleted
	}
	s.Run = run
	s.appendTurn(ActionStep, kind, "", nil)
	return s.Run, nil
}

func (s *Session) stepFailed(step int, kind Kind, err error) (*Run, error) {
	err = &StepError{Step: step, Kind: kind, Err: err}
	failed := *s.Run
	failed.State = StateFailed
	failed.Step = step
	failed.Err = err
	s.Run = &failed
	s.appendTurn(ActionStep, kind, "", err)
	return s.Run, err
}

// Revise rewrites one asset according to comment and regenerates every
// asset after it.
// A failed revision of kind itself leaves the run untouched.
func (s *Session) Revise(ctx context.Context, kind Kind, comment string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Run == nil {
		return nil, &ValidationError{Field: "run", Msg: "nothing to revise"}
	}
	text, note, err := s.controller.Revise(ctx, kind, s.Seed, s.Mode, s.Run.Assets, comment)
	if err != nil {
		err = &StepError{Step: kind.Index(), Kind: kind, Err: err}
		s.appendTurn(ActionRevise, kind, comment, err)
		return s.Run, err
	}

	prefix := s.Run.Assets.Before(kind)
	if err := prefix.Put(kind, text); err != nil {
		return s.Run, err
	}
	run, err := s.controller.Resume(ctx, s.Seed, s.Mode, prefix)
	if run == nil {
		s.appendTurn(ActionRevise, kind, comment, err)
		return s.Run, err
	}
	if note != "" {
		run.Note = note
	} else if run.Note == "" {
		run.Note = s.Run.Note
	}
	s.Run = run
	s.appendTurn(ActionRevise, kind, comment, err)
	return s.Run, err
}

// Snapshot returns the current run and a copy of the history.
func (s *Session) Snapshot() (*Run, []Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := make([]Turn, len(s.History))
	copy(history, s.History)
	return s.Run, history
}

func (s *Session) appendTurn(action string, kind Kind, comment string, err error) {
	turn := Turn{
		Action:    action,
		Kind:      kind,
		Comment:   comment,
		FailedAt:  -1,
		CreatedAt: time.Now(),
	}
	if s.Run != nil {
		turn.State = s.Run.State
		turn.FailedAt = s.Run.FailedAt()
	}
	if err != nil {
		turn.Error = err.Error()
	}
	s.History = append(s.History, turn)
}

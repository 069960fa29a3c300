package session

import (
	"context"
	"encoding/json"
	"io"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/sonify/diarization"
	"github.com/kbukum/sonify/errors"
	"github.com/kbukum/sonify/logger"
	"github.com/kbukum/sonify/pipeline"
	"github.com/kbukum/sonify/transcription"
)

// Runner is the part of *pipeline.Pipeline a Manager drives.
type Runner interface {
	Prepare(ctx context.Context, src, model, language string) (*pipeline.Prepared, error)
	Lookup(ctx context.Context, prep *pipeline.Prepared) (*pipeline.Output, bool, error)
	Transcribe(ctx context.Context, prep *pipeline.Prepared, req pipeline.Request) (*pipeline.Output, error)
	Diarize(ctx context.Context, out *pipeline.Output, opts pipeline.DiarizationOptions, force bool, onProgress diarization.ProgressFunc) error
}

// Broadcaster delivers snapshot updates to subscribers whose client id
// matches a glob pattern. *sse.Hub satisfies it.
type Broadcaster interface {
	BroadcastToPattern(pattern string, data []byte)
}

// ClientPattern matches every subscriber client id of session id.
func ClientPattern(id string) string { return "session:" + id + ":*" }

// NewClientID returns a fresh subscriber client id for session id.
func NewClientID(id string) string { return "session:" + id + ":" + uuid.NewString() }

// Settings are the run parameters applied to every session.
type Settings struct {
	Model       string
	Language    string
	ChunkSize   float64
	Diarization pipeline.DiarizationOptions
	UploadDir   string
	// MaxUploadBytes caps one upload; zero means unlimited.
	MaxUploadBytes int64
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID        string                    `json:"id"`
	Phase     Phase                     `json:"phase"`
	Filename  string                    `json:"filename,omitempty"`
	Identity  *pipeline.Identity        `json:"identity,omitempty"`
	Cached    bool                      `json:"cached"`
	Text      string                    `json:"text,omitempty"`
	Segments  []transcription.Segment   `json:"segments,omitempty"`
	Turns     []diarization.AlignedTurn `json:"turns,omitempty"`
	Speakers  map[string]string         `json:"speakers,omitempty"`
	Progress  *Progress                 `json:"progress,omitempty"`
	Canceling bool                      `json:"canceling,omitempty"`
	Error     string                    `json:"error,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

type session struct {
	snap Snapshot
	prep *pipeline.Prepared
	out  *pipeline.Output
	// gen changes on every run and restart; a finishing run whose gen is
	// stale leaves the session alone.
	gen    int
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithBroadcaster publishes every snapshot change to b.
func WithBroadcaster(b Broadcaster) Option {
	return func(m *Manager) { m.broadcaster = b }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns every session and the goroutines running their work.
type Manager struct {
	runner      Runner
	settings    Settings
	log         *logger.Logger
	broadcaster Broadcaster
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*session

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewManager creates a Manager running work through runner.
func NewManager(runner Runner, settings Settings, log *logger.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	ctx, stop := context.WithCancel(context.Background())
	m := &Manager{
		runner:   runner,
		settings: settings,
		log:      log.WithComponent("session"),
		now:      time.Now,
		sessions: make(map[string]*session),
		ctx:      ctx,
		stop:     stop,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Close cancels every running session and waits for the runs to return.
func (m *Manager) Close() {
	m.stop()
	m.wg.Wait()
}

// Create starts a new session in PhaseStart.
func (m *Manager) Create() Snapshot {
	now := m.now()
	s := &session{snap: Snapshot{
		ID:        uuid.NewString(),
		Phase:     PhaseStart,
		CreatedAt: now,
		UpdatedAt: now,
	}}

	m.mu.Lock()
	m.sessions[s.snap.ID] = s
	snap := m.snapshot(s)
	m.mu.Unlock()

	m.log.Info("session created", logger.Fields(logger.FieldSessionID, snap.ID))
	return snap
}

// Get returns the current snapshot of session id.
func (m *Manager) Get(id string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.lookup(id)
	if err != nil {
		return Snapshot{}, err
	}
	return m.snapshot(s), nil
}

// Upload stores the file, normalizes it and moves the session to uploaded.
// When the identity already has a finished run, the session goes straight
// to transcribed, or diarized when turns are cached as well.
func (m *Manager) Upload(ctx context.Context, id, filename string, r io.Reader) (Snapshot, error) {
	m.mu.Lock()
	s, err := m.lookup(id)
	if err == nil {
		err = transition(s.snap.Phase, PhaseUploaded)
	}
	m.mu.Unlock()
	if err != nil {
		return Snapshot{}, err
	}

	path, err := storeUpload(m.settings.UploadDir, filename, r, m.settings.MaxUploadBytes)
	if err != nil {
		return Snapshot{}, err
	}
	prep, err := m.runner.Prepare(ctx, path, m.settings.Model, m.settings.Language)
	if err != nil {
		return Snapshot{}, err
	}
	out, cached, err := m.runner.Lookup(ctx, prep)
	if err != nil {
		return Snapshot{}, err
	}

	m.mu.Lock()
	if err := transition(s.snap.Phase, PhaseUploaded); err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}
	s.prep = prep
	s.snap.Filename = filename
	s.snap.Identity = &prep.Identity
	s.snap.Phase = PhaseUploaded
	if cached {
		s.setOutput(out)
		s.snap.Phase = PhaseTranscribed
		if out.Turns != nil {
			s.snap.Phase = PhaseDiarized
		}
	}
	snap, data := m.touch(s)
	m.mu.Unlock()

	m.publish(snap.ID, data)
	m.log.Info("audio uploaded", logger.Fields(
		logger.FieldSessionID, id,
		logger.FieldContent, prep.Identity.ContentHash,
		logger.FieldPhase, string(snap.Phase),
	))
	return snap, nil
}

// Transcribe starts transcription in the background.
func (m *Manager) Transcribe(id string, force bool) (Snapshot, error) {
	m.mu.Lock()
	s, err := m.lookup(id)
	if err == nil && s.prep == nil {
		err = errors.Conflict("upload audio before transcribing")
	}
	if err == nil {
		err = transition(s.snap.Phase, PhaseTranscribing)
	}
	if err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}

	ctx, gen := m.begin(s, PhaseTranscribing)
	prep := s.prep
	snap, data := m.touch(s)
	m.mu.Unlock()
	m.publish(id, data)

	started := m.now()
	go func() {
		defer m.wg.Done()
		out, err := m.runner.Transcribe(ctx, prep, pipeline.Request{
			Model:     prep.Identity.Model,
			Language:  prep.Identity.Language,
			ChunkSize: m.settings.ChunkSize,
			Force:     force,
			OnTranscribeProgress: func(completed, total int) {
				m.progress(id, gen, StepChunks, completed, total, started)
			},
		})
		m.finish(id, gen, err, PhaseTranscribed, PhaseUploaded, func(s *session) {
			s.setOutput(out)
		})
	}()
	return snap, nil
}

// Diarize starts diarization in the background. It fails at once when no
// credential is configured.
func (m *Manager) Diarize(id string, force bool) (Snapshot, error) {
	if m.settings.Diarization.Credential == "" {
		return Snapshot{}, errors.Configuration("diarization requires a credential; set diarization.credential")
	}

	m.mu.Lock()
	s, err := m.lookup(id)
	if err == nil && s.out == nil {
		err = errors.Conflict("transcribe the audio before diarizing")
	}
	if err == nil {
		err = transition(s.snap.Phase, PhaseDiarizing)
	}
	if err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}

	ctx, gen := m.begin(s, PhaseDiarizing)
	out := *s.out
	snap, data := m.touch(s)
	m.mu.Unlock()
	m.publish(id, data)

	started := m.now()
	go func() {
		defer m.wg.Done()
		err := m.runner.Diarize(ctx, &out, m.settings.Diarization, force, func(step string, completed, total int) {
			m.progress(id, gen, step, completed, total, started)
		})
		m.finish(id, gen, err, PhaseDiarized, PhaseTranscribed, func(s *session) {
			s.setOutput(&out)
		})
	}()
	return snap, nil
}

// Cancel asks the running step to stop at its next checkpoint. The session
// returns to the phase the step started from once it does.
func (m *Manager) Cancel(id string) (Snapshot, error) {
	m.mu.Lock()
	s, err := m.lookup(id)
	if err == nil && !s.snap.Phase.Running() {
		err = errors.Conflict("nothing is running in phase " + string(s.snap.Phase))
	}
	if err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}
	s.cancel()
	s.snap.Canceling = true
	snap, data := m.touch(s)
	m.mu.Unlock()

	m.publish(id, data)
	m.log.Info("cancel requested", logger.Fields(logger.FieldSessionID, id, logger.FieldPhase, string(snap.Phase)))
	return snap, nil
}

// Restart cancels any running step and resets the session to start.
func (m *Manager) Restart(id string) (Snapshot, error) {
	m.mu.Lock()
	s, err := m.lookup(id)
	if err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}
	if s.cancel != nil {
		s.cancel()
		close(s.done)
	}
	s.gen++
	s.prep, s.out, s.cancel, s.done = nil, nil, nil, nil
	s.snap = Snapshot{ID: s.snap.ID, Phase: PhaseStart, CreatedAt: s.snap.CreatedAt}
	snap, data := m.touch(s)
	m.mu.Unlock()

	m.publish(id, data)
	return snap, nil
}

// SetSpeakers assigns display names to speaker labels of a diarized
// session. Unknown labels are rejected.
func (m *Manager) SetSpeakers(id string, names map[string]string) (Snapshot, error) {
	m.mu.Lock()
	s, err := m.lookup(id)
	if err == nil && s.snap.Phase != PhaseDiarized {
		err = errors.Conflict("speakers can only be named after diarization")
	}
	if err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}
	for label := range names {
		if _, ok := s.snap.Speakers[label]; !ok {
			m.mu.Unlock()
			return Snapshot{}, errors.InvalidInput("speakers", "unknown speaker label "+label)
		}
	}
	maps.Copy(s.snap.Speakers, names)
	snap, data := m.touch(s)
	m.mu.Unlock()

	m.publish(id, data)
	return snap, nil
}

// Wait blocks until the current run of session id finishes or ctx ends.
func (m *Manager) Wait(ctx context.Context, id string) (Snapshot, error) {
	m.mu.Lock()
	s, err := m.lookup(id)
	if err != nil {
		m.mu.Unlock()
		return Snapshot{}, err
	}
	done := s.done
	m.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
	return m.Get(id)
}

// --- internals; callers hold m.mu unless noted ---

func (m *Manager) lookup(id string) (*session, error) {
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.NotFound("session", id)
	}
	return s, nil
}

// begin moves s into a running phase and returns the run's context.
func (m *Manager) begin(s *session, phase Phase) (context.Context, int) {
	ctx, cancel := context.WithCancel(m.ctx)
	ctx = logger.ContextWithSessionID(ctx, s.snap.ID)
	s.gen++
	s.cancel = cancel
	s.done = make(chan struct{})
	s.snap.Phase = phase
	s.snap.Progress = nil
	s.snap.Canceling = false
	s.snap.Error = ""
	m.wg.Add(1)
	return ctx, s.gen
}

// progress records a step update. Called without m.mu.
func (m *Manager) progress(id string, gen int, step string, completed, total int, started time.Time) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.gen != gen {
		m.mu.Unlock()
		return
	}
	p := newProgress(step, completed, total, started, m.now())
	s.snap.Progress = &p
	_, data := m.touch(s)
	m.mu.Unlock()
	m.publish(id, data)
}

// finish settles a run. Called without m.mu.
func (m *Manager) finish(id string, gen int, err error, success, canceled Phase, apply func(*session)) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.gen != gen {
		m.mu.Unlock()
		return
	}
	s.cancel()
	close(s.done)
	s.cancel, s.done = nil, nil
	s.snap.Canceling = false

	log := m.log.WithFields(logger.Fields(logger.FieldSessionID, id))
	switch {
	case err == nil:
		apply(s)
		s.snap.Phase = success
		log.Info("step finished", logger.Fields(logger.FieldPhase, string(success)))
	case errors.HasCode(err, errors.ErrCodeCanceled):
		s.snap.Phase = canceled
		s.snap.Progress = nil
		log.Info("step canceled", logger.Fields(logger.FieldPhase, string(canceled)))
	default:
		s.snap.Phase = PhaseFailed
		s.snap.Error = err.Error()
		log.Error("step failed", logger.Fields(logger.FieldError, err.Error()))
	}
	_, data := m.touch(s)
	m.mu.Unlock()
	m.publish(id, data)
}

func (s *session) setOutput(out *pipeline.Output) {
	s.out = out
	s.snap.Cached = out.Cached
	s.snap.Text = out.Text
	s.snap.Segments = out.Segments
	s.snap.Turns = out.Turns
	if out.Turns == nil {
		s.snap.Speakers = nil
		return
	}
	// Every label starts named after itself.
	speakers := make(map[string]string)
	for _, t := range out.Turns {
		if name, ok := s.snap.Speakers[t.Speaker]; ok {
			speakers[t.Speaker] = name
		} else {
			speakers[t.Speaker] = t.Speaker
		}
	}
	s.snap.Speakers = speakers
}

// touch stamps s and returns its snapshot plus the encoded event.
func (m *Manager) touch(s *session) (Snapshot, []byte) {
	s.snap.UpdatedAt = m.now()
	snap := m.snapshot(s)
	if m.broadcaster == nil {
		return snap, nil
	}
	data, err := json.Marshal(snap)
	if err != nil {
		m.log.Warn("encode session event", logger.Fields(logger.FieldError, err.Error()))
		return snap, nil
	}
	return snap, data
}

func (m *Manager) snapshot(s *session) Snapshot {
	snap := s.snap
	snap.Speakers = maps.Clone(s.snap.Speakers)
	if s.snap.Progress != nil {
		p := *s.snap.Progress
		snap.Progress = &p
	}
	return snap
}

// publish is called without m.mu.
func (m *Manager) publish(id string, data []byte) {
	if m.broadcaster == nil || data == nil {
		return
	}
	m.broadcaster.BroadcastToPattern(ClientPattern(id), data)
}

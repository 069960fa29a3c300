package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/sonify/errors"
	"github.com/kbukum/sonify/logger"
	"github.com/kbukum/sonify/pipeline"
	"github.com/kbukum/sonify/server/middleware"
	"github.com/kbukum/sonify/session"
	"github.com/kbukum/sonify/sse"
	"github.com/kbukum/sonify/transcript"
	"github.com/kbukum/sonify/validation"
)

// multipartSlack covers form boundaries and headers on top of the file.
const multipartSlack = 1 << 20

// BatchRunner runs several files through the pipeline. *pipeline.Pipeline
// satisfies it.
type BatchRunner interface {
	Batch(ctx context.Context, sources []string, req pipeline.Request, opts pipeline.BatchOptions) ([]pipeline.FileResult, error)
}

// API serves the session routes.
type API struct {
	sessions *session.Manager
	batch    BatchRunner
	hub      *sse.Hub
	settings session.Settings
	maxBatch int
	log      *logger.Logger
}

// NewAPI wires the handlers. batch and hub may be nil, which disables
// POST /v1/batch and the event stream.
func NewAPI(sessions *session.Manager, batch BatchRunner, hub *sse.Hub, settings session.Settings, maxBatch int, log *logger.Logger) *API {
	if log == nil {
		log = logger.Nop()
	}
	return &API{
		sessions: sessions,
		batch:    batch,
		hub:      hub,
		settings: settings,
		maxBatch: maxBatch,
		log:      log.WithComponent("api"),
	}
}

// Register mounts the routes on r.
func (a *API) Register(r gin.IRouter) {
	limit := middleware.GinWrap(middleware.BodySizeLimit(a.uploadLimit()))

	v1 := r.Group("/v1")
	v1.POST("/sessions", limit, a.create)

	s := v1.Group("/sessions/:id", a.sessionID)
	s.GET("", a.get)
	s.POST("/upload", limit, a.upload)
	s.POST("/transcribe", a.transcribe)
	s.POST("/diarize", a.diarize)
	s.POST("/cancel", a.cancel)
	s.POST("/restart", a.restart)
	s.PUT("/speakers", a.setSpeakers)
	s.GET("/speakers", a.speakers)
	s.GET("/transcript", a.transcript)
	if a.hub != nil {
		s.GET("/events", a.events)
	}

	if a.batch != nil {
		v1.POST("/batch", middleware.GinWrap(middleware.BodySizeLimit(a.batchLimit())), a.runBatch)
	}
}

func (a *API) uploadLimit() int64 {
	if a.settings.MaxUploadBytes <= 0 {
		return 0
	}
	return a.settings.MaxUploadBytes + multipartSlack
}

func (a *API) batchLimit() int64 {
	if a.settings.MaxUploadBytes <= 0 {
		return 0
	}
	return int64(a.maxFiles())*a.settings.MaxUploadBytes + multipartSlack
}

func (a *API) maxFiles() int {
	if a.maxBatch > 0 {
		return a.maxBatch
	}
	return pipeline.DefaultMaxBatchFiles
}

// sessionID rejects ids that cannot name a session before any handler runs.
func (a *API) sessionID(c *gin.Context) {
	if _, err := validation.ValidateUUID("id", c.Param("id")); err != nil {
		RespondWithError(c, err)
		return
	}
	c.Next()
}

func (a *API) create(c *gin.Context) {
	snap := a.sessions.Create()
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		fh, err := c.FormFile("audio")
		if err != nil && err != http.ErrMissingFile {
			RespondWithError(c, formError("audio", err))
			return
		}
		if fh != nil {
			if snap, err = a.store(c, snap.ID, fh); err != nil {
				RespondWithError(c, err)
				return
			}
		}
	}
	RespondCreated(c, snap)
}

func (a *API) get(c *gin.Context) {
	snap, err := a.sessions.Get(c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, snap)
}

func (a *API) upload(c *gin.Context) {
	fh, err := c.FormFile("audio")
	if err != nil {
		RespondWithError(c, formError("audio", err))
		return
	}
	snap, err := a.store(c, c.Param("id"), fh)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, snap)
}

func (a *API) store(c *gin.Context, id string, fh *multipart.FileHeader) (session.Snapshot, error) {
	f, err := fh.Open()
	if err != nil {
		return session.Snapshot{}, err
	}
	defer f.Close()
	return a.sessions.Upload(c.Request.Context(), id, fh.Filename, f)
}

func (a *API) transcribe(c *gin.Context) {
	a.start(c, a.sessions.Transcribe)
}

func (a *API) diarize(c *gin.Context) {
	a.start(c, a.sessions.Diarize)
}

func (a *API) start(c *gin.Context, run func(id string, force bool) (session.Snapshot, error)) {
	force, err := boolQuery(c, "force")
	if err != nil {
		RespondWithError(c, err)
		return
	}
	snap, err := run(c.Param("id"), force)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondAccepted(c, snap)
}

func (a *API) cancel(c *gin.Context) {
	snap, err := a.sessions.Cancel(c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, snap)
}

func (a *API) restart(c *gin.Context) {
	snap, err := a.sessions.Restart(c.Param("id"))
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, snap)
}

func (a *API) setSpeakers(c *gin.Context) {
	var names map[string]string
	if err := c.ShouldBindJSON(&names); err != nil {
		RespondWithError(c, errors.InvalidInput("speakers", "expected a JSON object of label to name"))
		return
	}
	v := validation.New().Custom(len(names) > 0, "speakers", "at least one speaker is required")
	for label, name := range names {
		v.Required("speakers."+label, name)
		names[label] = strings.TrimSpace(name)
	}
	if err := v.Err(); err != nil {
		RespondWithError(c, err)
		return
	}
	snap, err := a.sessions.SetSpeakers(c.Param("id"), names)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	RespondOK(c, snap)
}

// speakers renders the merged speaker view of a diarized session.
func (a *API) speakers(c *gin.Context) {
	format := c.DefaultQuery("format", string(transcript.FormatMarkdown))
	trueEnd, err := boolQuery(c, "true_end")
	if err == nil {
		err = oneOf("format", format, transcript.FormatMarkdown, transcript.FormatJSON)
	}
	if err != nil {
		RespondWithError(c, err)
		return
	}
	snap, err := a.sessions.Get(c.Param("id"))
	if err == nil && snap.Phase != session.PhaseDiarized {
		err = errors.Conflict("the session has not been diarized")
	}
	if err != nil {
		RespondWithError(c, err)
		return
	}

	var opts []transcript.MergeOption
	if trueEnd {
		opts = append(opts, transcript.WithTrueEnd())
	}
	blocks := transcript.Merge(snap.Turns, snap.Speakers, opts...)

	if transcript.Format(format) == transcript.FormatJSON {
		RespondOK(c, blocks)
		return
	}
	attach(c, snap, "speakers", transcript.FormatMarkdown, "text/markdown; charset=utf-8")
	if err := transcript.WriteSpeakers(c.Writer, blocks); err != nil {
		a.log.WithContext(c.Request.Context()).Warn("write speakers", logger.Fields(logger.FieldError, err.Error()))
	}
}

var contentTypes = map[transcript.Format]string{
	transcript.FormatText: "text/plain; charset=utf-8",
	transcript.FormatSRT:  "application/x-subrip; charset=utf-8",
	transcript.FormatVTT:  "text/vtt; charset=utf-8",
}

// transcript renders the plain transcript of a transcribed session.
func (a *API) transcript(c *gin.Context) {
	format := transcript.Format(c.DefaultQuery("format", string(transcript.FormatText)))
	if err := oneOf("format", string(format), transcript.FormatText, transcript.FormatSRT, transcript.FormatVTT, transcript.FormatJSON); err != nil {
		RespondWithError(c, err)
		return
	}
	snap, err := a.sessions.Get(c.Param("id"))
	if err == nil && snap.Identity == nil {
		err = errors.Conflict("no audio has been uploaded")
	}
	if err == nil && snap.Phase != session.PhaseTranscribed && snap.Phase != session.PhaseDiarizing && snap.Phase != session.PhaseDiarized {
		err = errors.Conflict("the session has no finished transcript")
	}
	if err != nil {
		RespondWithError(c, err)
		return
	}

	if format == transcript.FormatJSON {
		RespondOK(c, gin.H{"text": snap.Text, "segments": snap.Segments})
		return
	}
	attach(c, snap, "transcript", format, contentTypes[format])
	if err := transcript.WriteSegments(c.Writer, format, snap.Segments); err != nil {
		a.log.WithContext(c.Request.Context()).Warn("write transcript", logger.Fields(logger.FieldError, err.Error()))
	}
}

// attach sets the headers of a downloadable export named after the upload.
func attach(c *gin.Context, snap session.Snapshot, suffix string, format transcript.Format, contentType string) {
	base := strings.TrimSuffix(filepath.Base(snap.Filename), filepath.Ext(snap.Filename))
	if base == "" || base == "." {
		base = snap.ID
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", base+"."+suffix+"."+string(format)))
	c.Header("Content-Type", contentType)
	c.Status(http.StatusOK)
}

func (a *API) events(c *gin.Context) {
	id := c.Param("id")
	snap, err := a.sessions.Get(id)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	initial, err := json.Marshal(snap)
	if err != nil {
		RespondWithError(c, err)
		return
	}
	sse.Serve(a.hub, c.Writer, c.Request, session.NewClientID(id), sse.ServeOptions{Initial: initial})
}

// batchItem is one file of a batch response.
type batchItem struct {
	Filename string            `json:"filename"`
	Output   *pipeline.Output  `json:"output,omitempty"`
	Error    *errors.ErrorBody `json:"error,omitempty"`
}

// runBatch processes the uploaded "files" synchronously and answers with a
// result per file. Per-file failures are reported inline.
func (a *API) runBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		RespondWithError(c, formError("files", err))
		return
	}
	files := form.File["files"]
	diarize, err := boolQuery(c, "diarize")
	if err == nil {
		err = validation.New().
			Custom(len(files) > 0, "files", "at least one file is required").
			Max("files", len(files), a.maxFiles()).
			Err()
	}
	if err != nil {
		RespondWithError(c, err)
		return
	}

	dir, err := os.MkdirTemp(a.settings.UploadDir, "batch-")
	if err != nil {
		RespondWithError(c, err)
		return
	}
	defer os.RemoveAll(dir) //nolint:errcheck // temporary copies

	sources := make([]string, len(files))
	for i, fh := range files {
		sources[i] = filepath.Join(dir, fmt.Sprintf("%02d%s", i, strings.ToLower(filepath.Ext(fh.Filename))))
		if err := c.SaveUploadedFile(fh, sources[i]); err != nil {
			RespondWithError(c, err)
			return
		}
	}

	// A batch outlives the server WriteTimeout.
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})

	req := pipeline.Request{
		Model:       a.settings.Model,
		Language:    a.settings.Language,
		ChunkSize:   a.settings.ChunkSize,
		Diarize:     diarize,
		Diarization: a.settings.Diarization,
	}
	results, err := a.batch.Batch(c.Request.Context(), sources, req, pipeline.BatchOptions{MaxFiles: a.maxFiles()})
	if err != nil && len(results) == 0 {
		RespondWithError(c, err)
		return
	}

	canceled := errors.Canceled("batch").ToResponse().Error
	items := make([]batchItem, len(files))
	for i, fh := range files {
		items[i].Filename = fh.Filename
		if i >= len(results) {
			items[i].Error = &canceled
			continue
		}
		items[i].Output = results[i].Output
		if results[i].Err != nil {
			body := errors.Wrap(results[i].Err).ToResponse().Error
			items[i].Error = &body
		}
	}
	RespondOK(c, items)
}

// formError reports a missing or unreadable multipart field. An exceeded
// body limit passes through so it renders as 413.
func formError(field string, err error) error {
	var tooLarge *http.MaxBytesError
	if stderrors.As(err, &tooLarge) {
		return err
	}
	return errors.InvalidInput(field, "a multipart/form-data file field named "+field+" is required").WithCause(err)
}

func boolQuery(c *gin.Context, name string) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.InvalidInput(name, "must be true or false")
	}
	return v, nil
}

func oneOf(field, value string, allowed ...transcript.Format) error {
	names := make([]string, len(allowed))
	for i, f := range allowed {
		names[i] = string(f)
	}
	return validation.New().OneOf(field, value, names).Err()
}

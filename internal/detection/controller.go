package detection

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"time"

	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/models"
	detectionsvc "github.com/Capitan-Parrot/distributed-video-system/redactor/internal/services/detection"
	"github.com/Capitan-Parrot/distributed-video-system/redactor/internal/violation"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval = 2 * time.Second
	DefaultDetector     = "nudenet"

	msgSubmitFailed  = "Detection request failed"
	msgRemoteFailed  = "Detection failed"
	msgPollingFailed = "Polling failed"

	msgSuperseded = "superseded"
	msgCleared    = "cleared"
)

// Backend is the remote detection service.
type Backend interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
	Submit(ctx context.Context, payload models.SubmitRequest) (string, error)
	Status(ctx context.Context, taskID string) (*models.StatusResponse, error)
}

// Observer receives every state change in the order the controller commits them
// within a session. Observers are called outside the controller lock.
type Observer interface {
	Observe(ev models.StatusEvent)
}

// PollObserver is optionally implemented by observers that want one call per
// status query.
type PollObserver interface {
	ObservePoll(taskID, state string, err error)
}

// Request describes one detection start. An empty TaskID gets a generated id
// and an empty Detector uses the controller default.
type Request struct {
	TaskID    string
	VideoPath string
	Detector  string
}

// Snapshot is a read-only copy of the controller state.
type Snapshot struct {
	Status     models.DetectionStatus `json:"status"`
	Progress   int                    `json:"progress"`
	TaskID     string                 `json:"taskId"`
	VideoPath  string                 `json:"videoPath"`
	Violations []models.Violation     `json:"violations"`
	Error      string                 `json:"error"`
	Generation uint64                 `json:"generation"`
	// Source video size reported with the result; bboxes are in this space.
	VideoWidth  int `json:"videoWidth,omitempty"`
	VideoHeight int `json:"videoHeight,omitempty"`
}

type state struct {
	status     models.DetectionStatus
	progress   int
	taskID     string
	videoPath  string
	violations []models.Violation
	err        string
	width      int
	height     int
}

// Controller owns the detection session: submission, the polling loop and the
// resulting violations. Only its methods mutate the state.
type Controller struct {
	backend   Backend
	detector  string
	interval  time.Duration
	observers []Observer

	mu      sync.Mutex
	st      state
	gen     uint64
	cancel  context.CancelFunc
	changed chan struct{}
	pending []models.StatusEvent

	// serialises delivery so observers see events in commit order
	notifyMu sync.Mutex
}

type Option func(*Controller)

func WithDetector(name string) Option {
	return func(c *Controller) {
		if name != "" {
			c.detector = name
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithObserver registers o for state events. Observers must not call the
// controller's mutating methods.
func WithObserver(o Observer) Option {
	return func(c *Controller) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

func New(backend Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:  backend,
		detector: DefaultDetector,
		interval: DefaultPollInterval,
		st: state{
			status:     models.StatusIdle,
			violations: []models.Violation{},
		},
		changed: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartDetection submits videoPath under a freshly generated task id.
func (c *Controller) StartDetection(ctx context.Context, videoPath string) error {
	return c.Start(ctx, Request{VideoPath: videoPath})
}

func (c *Controller) StartDetectionWithID(ctx context.Context, taskID, videoPath string) error {
	return c.Start(ctx, Request{TaskID: taskID, VideoPath: videoPath})
}

// Start resets the session to detecting, submits the task and starts polling
// in the background. Allowed from any state. A submission failure moves the
// session to error and is also returned.
func (c *Controller) Start(ctx context.Context, req Request) error {
	gen := c.begin(req.VideoPath)
	return c.submit(ctx, gen, req.TaskID, req.VideoPath, req.Detector)
}

// StartDetectionFromFile uploads the video first and submits the backend path
// returned by the upload.
func (c *Controller) StartDetectionFromFile(ctx context.Context, filename string, r io.Reader) error {
	return c.StartFromFile(ctx, filename, r, Request{})
}

// StartFromFile is StartDetectionFromFile with a caller-chosen task id and
// detector. req.VideoPath is ignored.
func (c *Controller) StartFromFile(ctx context.Context, filename string, r io.Reader, req Request) error {
	gen := c.begin(filename)

	filePath, err := c.backend.Upload(ctx, filename, r)
	if err != nil {
		c.fail(gen, "Upload failed: "+failureMessage(err, "unknown error"))
		return err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.st.videoPath = filePath
	}
	c.mu.Unlock()

	return c.submit(ctx, gen, req.TaskID, filePath, req.Detector)
}

func (c *Controller) begin(videoPath string) uint64 {
	c.mu.Lock()
	gen := c.invalidateLocked(msgSuperseded)
	c.st = state{
		status:     models.StatusDetecting,
		videoPath:  videoPath,
		violations: []models.Violation{},
	}
	c.commitLocked()
	c.mu.Unlock()

	log.Info().Uint64("generation", gen).Str("video_path", videoPath).Msg("Detection: started")
	c.flush()
	return gen
}

func (c *Controller) submit(ctx context.Context, gen uint64, taskID, inputPath, detector string) error {
	if taskID == "" {
		taskID = uuid.NewString()
	}
	if detector == "" {
		detector = c.detector
	}

	remoteID, err := c.backend.Submit(ctx, models.SubmitRequest{
		TaskID:    taskID,
		InputPath: inputPath,
		Detector:  detector,
	})
	if err != nil {
		log.Error().Err(err).Str("task_id", taskID).Msg("Detection: submit failed")
		c.fail(gen, failureMessage(err, msgSubmitFailed))
		return err
	}

	// Поллинг живёт дольше запроса, который его запустил
	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		cancel()
		log.Warn().Str("task_id", remoteID).Uint64("generation", gen).Msg("Detection: session superseded before polling started")
		return nil
	}
	c.st.taskID = remoteID
	c.cancel = cancel
	c.commitLocked()
	c.mu.Unlock()

	c.flush()
	go c.poll(pollCtx, gen, remoteID)
	return nil
}

// PollStatus queries the task on a fixed interval until a terminal state is
// observed, a query fails, ctx ends, or the session is superseded. It blocks;
// StartDetection runs it in its own goroutine.
func (c *Controller) PollStatus(ctx context.Context, taskID string) {
	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	c.poll(ctx, gen, taskID)
}

func (c *Controller) poll(ctx context.Context, gen uint64, taskID string) {
	timer := time.NewTimer(c.interval)
	timer.Stop()
	defer timer.Stop()

	for {
		if !c.current(gen) {
			log.Debug().Str("task_id", taskID).Uint64("generation", gen).Msg("Detection: stale polling loop exits")
			return
		}

		resp, err := c.backend.Status(ctx, taskID)
		c.notifyPoll(taskID, resp, err)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("task_id", taskID).Msg("Detection: status query failed")
			c.fail(gen, msgPollingFailed)
			return
		}

		switch {
		case resp.State == models.TaskStateCompleted && resp.Result != nil:
			c.complete(gen, resp.Result)
			return
		case resp.State == models.TaskStateFailed:
			msg := resp.Error
			if msg == "" {
				msg = msgRemoteFailed
			}
			c.fail(gen, msg)
			return
		default:
			c.updateProgress(gen, resp.Progress)
		}

		timer.Reset(c.interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// ClearDetections resets to idle and stops the current polling loop.
func (c *Controller) ClearDetections() {
	c.mu.Lock()
	c.invalidateLocked(msgCleared)
	c.st = state{
		status:     models.StatusIdle,
		violations: []models.Violation{},
	}
	c.commitLocked()
	c.mu.Unlock()

	log.Info().Msg("Detection: cleared")
	c.flush()
}

// SetViolations injects an externally supplied result and marks the session done.
func (c *Controller) SetViolations(vs []models.Violation) {
	c.mu.Lock()
	// the task keeps its id and ends as done, no closing event
	c.invalidateLocked("")
	c.st.status = models.StatusDone
	c.st.progress = 100
	c.st.violations = violation.Clone(vs)
	c.st.err = ""
	c.commitLocked()
	c.mu.Unlock()

	log.Info().Int("violations", len(vs)).Msg("Detection: violations set directly")
	c.flush()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Wait blocks until the session is no longer detecting.
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	for {
		c.mu.Lock()
		if c.st.status.Terminal() {
			snap := c.snapshotLocked()
			c.mu.Unlock()
			return snap, nil
		}
		ch := c.changed
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		case <-ch:
		}
	}
}

// Close stops the running polling loop without touching the state.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) complete(gen uint64, raw *models.RawResult) {
	vs := violation.Parse(raw)

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		log.Warn().Uint64("generation", gen).Msg("Detection: dropping result of superseded session")
		return
	}
	c.st.status = models.StatusDone
	c.st.progress = 100
	c.st.violations = vs
	c.st.err = ""
	c.st.width = dimension(raw.Width)
	c.st.height = dimension(raw.Height)
	c.releaseLocked()
	ev := c.commitLocked()
	c.mu.Unlock()

	log.Info().Str("task_id", ev.TaskID).Int("violations", len(vs)).Msg("Detection: completed")
	c.flush()
}

func (c *Controller) fail(gen uint64, msg string) {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		log.Warn().Uint64("generation", gen).Str("error", msg).Msg("Detection: dropping failure of superseded session")
		return
	}
	c.st.status = models.StatusError
	c.st.err = msg
	c.st.violations = []models.Violation{}
	c.releaseLocked()
	ev := c.commitLocked()
	c.mu.Unlock()

	log.Warn().Str("task_id", ev.TaskID).Str("error", msg).Msg("Detection: failed")
	c.flush()
}

// updateProgress clamps to [0,100] and never lets progress go backwards.
func (c *Controller) updateProgress(gen uint64, fraction *float64) {
	if fraction == nil || math.IsNaN(*fraction) {
		return
	}
	p := int(math.Round(*fraction * 100))
	p = max(0, min(100, p))

	c.mu.Lock()
	if c.gen != gen || c.st.status != models.StatusDetecting || p <= c.st.progress {
		c.mu.Unlock()
		return
	}
	c.st.progress = p
	c.commitLocked()
	c.mu.Unlock()

	c.flush()
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// invalidateLocked starts a new generation and cancels the previous loop. With
// a non-empty reason, a task that was still detecting gets a closing idle
// event so its last reported state is not left at detecting.
func (c *Controller) invalidateLocked(reason string) uint64 {
	if reason != "" && c.st.taskID != "" && c.st.status == models.StatusDetecting {
		c.pending = append(c.pending, models.StatusEvent{
			Generation: c.gen,
			TaskID:     c.st.taskID,
			VideoPath:  c.st.videoPath,
			Status:     models.StatusIdle,
			Progress:   c.st.progress,
			Error:      reason,
			TimeStamp:  time.Now().UTC(),
		})
	}
	c.gen++
	c.releaseLocked()
	return c.gen
}

func (c *Controller) releaseLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// commitLocked wakes waiters and queues the event for flush.
func (c *Controller) commitLocked() models.StatusEvent {
	close(c.changed)
	c.changed = make(chan struct{})

	ev := models.StatusEvent{
		Generation: c.gen,
		TaskID:     c.st.taskID,
		VideoPath:  c.st.videoPath,
		Status:     c.st.status,
		Progress:   c.st.progress,
		Violations: len(c.st.violations),
		Error:      c.st.err,
		TimeStamp:  time.Now().UTC(),
	}
	c.pending = append(c.pending, ev)
	return ev
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		Status:     c.st.status,
		Progress:   c.st.progress,
		TaskID:     c.st.taskID,
		VideoPath:  c.st.videoPath,
		Violations: violation.Clone(c.st.violations),
		Error:      c.st.err,
		Generation: c.gen,

		VideoWidth:  c.st.width,
		VideoHeight: c.st.height,
	}
}

// flush delivers queued events outside c.mu. Whoever holds notifyMu drains
// the queue, so events reach observers in the order they were committed.
func (c *Controller) flush() {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	for {
		c.mu.Lock()
		evs := c.pending
		c.pending = nil
		c.mu.Unlock()

		if len(evs) == 0 {
			return
		}
		for _, ev := range evs {
			for _, o := range c.observers {
				o.Observe(ev)
			}
		}
	}
}

func (c *Controller) notifyPoll(taskID string, resp *models.StatusResponse, err error) {
	state := ""
	if resp != nil {
		state = resp.State
	}
	for _, o := range c.observers {
		if po, ok := o.(PollObserver); ok {
			po.ObservePoll(taskID, state, err)
		}
	}
}

// dimension is 0 for sizes the backend did not report sensibly.
func dimension(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return int(math.Round(v))
}

func failureMessage(err error, fallback string) string {
	var re *detectionsvc.RemoteError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	if err == nil || err.Error() == "" {
		return fallback
	}
	return err.Error()
}

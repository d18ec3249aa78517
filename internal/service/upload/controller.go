// Package upload drives the document upload/update workflow: local file
// validation, the single in-flight upload, progress reporting, and
// rebinding the active thread on success.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pdf-ai-assistant/internal/backend"
	"pdf-ai-assistant/internal/derror"
	"pdf-ai-assistant/internal/events"
	"pdf-ai-assistant/internal/metrics"
	model "pdf-ai-assistant/internal/model/chat"
	chatservice "pdf-ai-assistant/internal/service/chat"
)

// Mode selects between binding a first document and replacing an
// existing one.
type Mode string

const (
	ModeCreate Mode = "create"
	ModeUpdate Mode = "update"
)

// State of the current upload attempt.
type State string

const (
	StateIdle      State = "idle"
	StateUploading State = "uploading"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

const pdfContentType = "application/pdf"

// BackendClient is the slice of the inference client the controller needs.
type BackendClient interface {
	UploadPDF(ctx context.Context, filename string, content io.Reader, priorSessionID string) (*backend.UploadResult, error)
	EndSession(ctx context.Context, sessionID string) error
}

// FileInfo is the staged candidate as shown to the shell.
type FileInfo struct {
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	SizeLabel string `json:"sizeLabel"`
}

// Status is a snapshot of the controller for the shell.
type Status struct {
	State    State     `json:"state"`
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
	Selected *FileInfo `json:"selected,omitempty"`
}

type candidate struct {
	name string
	size int64
	data []byte
}

// Controller holds one staged file and allows one upload in flight.
type Controller struct {
	backend  BackendClient
	registry *chatservice.Registry
	bus      *events.Bus
	log      zerolog.Logger
	maxBytes int64

	mu        sync.Mutex
	state     State
	progress  int
	lastError string
	staged    *candidate
}

// NewController builds an idle controller. maxBytes caps accepted files.
func NewController(bc BackendClient, registry *chatservice.Registry, bus *events.Bus, maxBytes int64, log zerolog.Logger) *Controller {
	return &Controller{
		backend:  bc,
		registry: registry,
		bus:      bus,
		log:      log,
		maxBytes: maxBytes,
		state:    StateIdle,
	}
}

// SelectFile validates and stages a candidate file. Nothing touches the
// network here; violations surface immediately as validation errors.
func (c *Controller) SelectFile(name, contentType string, size int64, r io.Reader) error {
	c.mu.Lock()
	if c.state == StateUploading {
		c.mu.Unlock()
		return derror.ErrUploadInFlight
	}
	c.state = StateIdle
	c.progress = 0
	c.lastError = ""
	c.mu.Unlock()

	if contentType != pdfContentType {
		return derror.ErrNotPDF
	}
	if size > c.maxBytes {
		return derror.FileTooLarge(c.maxBytes >> 20)
	}

	data, err := io.ReadAll(io.LimitReader(r, c.maxBytes+1))
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return derror.FileTooLarge(c.maxBytes >> 20)
	}

	c.mu.Lock()
	c.staged = &candidate{name: name, size: int64(len(data)), data: data}
	c.mu.Unlock()
	c.log.Debug().Str("file", name).Int("bytes", len(data)).Msg("file staged for upload")
	return nil
}

// ClearSelection drops the staged candidate and resets a finished attempt.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateUploading {
		return
	}
	c.staged = nil
	c.state = StateIdle
	c.progress = 0
	c.lastError = ""
}

// Status returns the current snapshot.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status{State: c.state, Progress: c.progress, Error: c.lastError}
	if c.staged != nil {
		s.Selected = &FileInfo{Name: c.staged.name, Size: c.staged.size, SizeLabel: sizeLabel(c.staged.size)}
	}
	return s
}

// Submit uploads the staged file and, on success, rebinds the thread that
// was active at submit time. Update mode first asks the backend to end the
// previous session; that failing is logged and the update proceeds. Only
// one upload may be in flight; a concurrent submit is refused. A failed
// attempt leaves the prior binding untouched.
func (c *Controller) Submit(ctx context.Context, mode Mode) error {
	c.mu.Lock()
	if c.staged == nil {
		c.mu.Unlock()
		return derror.ErrNoFileSelected
	}
	if c.state == StateUploading {
		c.mu.Unlock()
		return derror.ErrUploadInFlight
	}
	staged := c.staged
	c.state = StateUploading
	c.progress = 0
	c.lastError = ""
	c.mu.Unlock()

	active, ok := c.registry.Active()
	if !ok {
		c.finishFailure(mode, "Failed to upload PDF. No active chat thread.")
		return derror.ErrThreadNotFound
	}
	prior := active.Binding

	if mode == ModeUpdate && prior.Bound() {
		if err := c.backend.EndSession(ctx, prior.SessionID); err != nil {
			c.log.Warn().Str("session", prior.SessionID).Err(err).Msg("failed to end previous session")
		}
	}

	priorID := ""
	if mode == ModeUpdate {
		priorID = prior.SessionID
	}

	done := make(chan struct{})
	go c.tickProgress(done)

	result, err := c.backend.UploadPDF(ctx, staged.name, bytes.NewReader(staged.data), priorID)
	close(done)

	if err != nil {
		c.finishFailure(mode, "Failed to upload PDF. "+backend.UserMessage(err))
		return err
	}

	filename := result.Filename
	if filename == "" {
		filename = staged.name
	}
	binding := model.SessionBinding{
		SessionID: result.SessionID,
		Document: model.DocumentInfo{
			Name:       filename,
			Size:       sizeLabel(staged.size),
			UploadedAt: time.Now().Format("2006-01-02 15:04"),
			IsUpdate:   mode == ModeUpdate,
		},
	}
	if err := c.registry.Rebind(active.ID, binding); err != nil {
		c.finishFailure(mode, "Failed to upload PDF. "+err.Error())
		return err
	}
	_, _ = c.registry.AppendMessage(active.ID, model.Message{
		Sender:   model.SenderSystem,
		Text:     successMessage(mode, filename),
		IsSystem: true,
	})

	c.mu.Lock()
	c.progress = 100
	c.state = StateSucceeded
	c.staged = nil
	c.mu.Unlock()
	c.publishProgress()
	c.publish(events.Event{Type: events.TypeUploadFinished, ThreadID: active.ID, Payload: binding.Document})
	metrics.ObserveUpload(string(mode), true)
	c.log.Info().Int("thread", active.ID).Str("session", result.SessionID).Str("mode", string(mode)).Msg("document bound")

	c.mu.Lock()
	c.state = StateIdle
	c.progress = 0
	c.mu.Unlock()
	return nil
}

// tickProgress feeds synthetic progress while no transport signal exists:
// +10 every 200ms, capped at 90 until the request resolves.
func (c *Controller) tickProgress(done <-chan struct{}) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.state == StateUploading && c.progress < 90 {
				c.progress += 10
			}
			c.mu.Unlock()
			c.publishProgress()
		}
	}
}

func (c *Controller) finishFailure(mode Mode, userMsg string) {
	c.mu.Lock()
	c.state = StateFailed
	c.progress = 0
	c.lastError = userMsg
	c.mu.Unlock()
	c.publish(events.Event{Type: events.TypeUploadFailed, Payload: userMsg})
	metrics.ObserveUpload(string(mode), false)
	c.log.Warn().Str("mode", string(mode)).Msg(userMsg)
}

func (c *Controller) publishProgress() {
	c.publish(events.Event{Type: events.TypeUploadProgress, Payload: c.Status()})
}

func (c *Controller) publish(e events.Event) {
	if c.bus != nil {
		c.bus.Publish(e)
	}
}

func successMessage(mode Mode, filename string) string {
	if mode == ModeUpdate {
		return fmt.Sprintf("✅ PDF updated successfully: %q. You can now ask questions about the updated content.", filename)
	}
	return fmt.Sprintf("✅ PDF uploaded successfully: %q. You can now ask questions about this document.", filename)
}

func sizeLabel(size int64) string {
	return fmt.Sprintf("%.2f MB", float64(size)/(1024*1024))
}

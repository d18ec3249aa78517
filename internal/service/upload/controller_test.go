package upload

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"pdf-ai-assistant/internal/backend"
	"pdf-ai-assistant/internal/derror"
	"pdf-ai-assistant/internal/events"
	model "pdf-ai-assistant/internal/model/chat"
	chatservice "pdf-ai-assistant/internal/service/chat"
)

type uploadCall struct {
	filename string
	prior    string
}

type fakeBackend struct {
	mu      sync.Mutex
	uploads []uploadCall
	ended   []string

	result  *backend.UploadResult
	err     error
	endErr  error
	release chan struct{} // when set, UploadPDF blocks until closed
}

func (f *fakeBackend) UploadPDF(_ context.Context, filename string, content io.Reader, prior string) (*backend.UploadResult, error) {
	_, _ = io.ReadAll(content)
	f.mu.Lock()
	f.uploads = append(f.uploads, uploadCall{filename: filename, prior: prior})
	release := f.release
	f.mu.Unlock()
	if release != nil {
		<-release
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeBackend) EndSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, sessionID)
	return f.endErr
}

func (f *fakeBackend) uploadCalls() []uploadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uploadCall, len(f.uploads))
	copy(out, f.uploads)
	return out
}

const maxBytes = 50 * 1024 * 1024

func setup(bc BackendClient) (*Controller, *chatservice.Registry) {
	registry := chatservice.NewRegistry(nil, events.NewBus(), zerolog.Nop())
	ctrl := NewController(bc, registry, events.NewBus(), maxBytes, zerolog.Nop())
	return ctrl, registry
}

func stage(t *testing.T, ctrl *Controller, name string) {
	t.Helper()
	if err := ctrl.SelectFile(name, "application/pdf", 4, strings.NewReader("%PDF")); err != nil {
		t.Fatalf("SelectFile err: %v", err)
	}
}

func TestSelectFileRejectsNonPDF(t *testing.T) {
	fb := &fakeBackend{}
	ctrl, _ := setup(fb)

	err := ctrl.SelectFile("notes.txt", "text/plain", 10, strings.NewReader("hi"))
	if !errors.Is(err, derror.ErrNotPDF) {
		t.Fatalf("expected ErrNotPDF, got %v", err)
	}
	if len(fb.uploadCalls()) != 0 {
		t.Fatal("validation failure must not reach the network")
	}
}

func TestSelectFileRejectsOversize(t *testing.T) {
	fb := &fakeBackend{}
	ctrl, _ := setup(fb)

	err := ctrl.SelectFile("big.pdf", "application/pdf", 60*1024*1024, strings.NewReader("x"))
	if !errors.Is(err, derror.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if len(fb.uploadCalls()) != 0 {
		t.Fatal("validation failure must not reach the network")
	}
	if ctrl.Status().Selected != nil {
		t.Fatal("oversize file must not be staged")
	}
}

func TestOversizeErrorNamesConfiguredCap(t *testing.T) {
	registry := chatservice.NewRegistry(nil, events.NewBus(), zerolog.Nop())
	ctrl := NewController(&fakeBackend{}, registry, events.NewBus(), 10*1024*1024, zerolog.Nop())

	err := ctrl.SelectFile("big.pdf", "application/pdf", 11*1024*1024, strings.NewReader("x"))
	if !errors.Is(err, derror.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if !strings.Contains(err.Error(), "10MB") {
		t.Fatalf("error must name the configured cap: %q", err)
	}
}

func TestSelectFileStagesValidPDF(t *testing.T) {
	ctrl, _ := setup(&fakeBackend{})
	stage(t, ctrl, "doc.pdf")

	sel := ctrl.Status().Selected
	if sel == nil || sel.Name != "doc.pdf" {
		t.Fatalf("candidate not retained: %+v", sel)
	}
}

func TestSubmitWithoutFileRefused(t *testing.T) {
	ctrl, _ := setup(&fakeBackend{})
	if err := ctrl.Submit(context.Background(), ModeCreate); !errors.Is(err, derror.ErrNoFileSelected) {
		t.Fatalf("expected ErrNoFileSelected, got %v", err)
	}
}

func TestSubmitCreateBindsActiveThread(t *testing.T) {
	fb := &fakeBackend{result: &backend.UploadResult{SessionID: "sess-9", Filename: "report.pdf"}}
	ctrl, registry := setup(fb)
	stage(t, ctrl, "doc.pdf")

	if err := ctrl.Submit(context.Background(), ModeCreate); err != nil {
		t.Fatalf("Submit err: %v", err)
	}

	active, _ := registry.Active()
	if active.Binding.SessionID != "sess-9" {
		t.Fatalf("binding not set: %+v", active.Binding)
	}
	if active.Binding.Document.Name != "report.pdf" {
		t.Fatalf("document info missing: %+v", active.Binding.Document)
	}

	last := active.Messages[len(active.Messages)-1]
	if last.Sender != model.SenderSystem || !last.IsSystem {
		t.Fatalf("expected trailing system message, got %+v", last)
	}
	if !strings.Contains(last.Text, "uploaded successfully") {
		t.Fatalf("wrong create wording: %q", last.Text)
	}

	if ctrl.Status().Selected != nil {
		t.Fatal("candidate must be cleared after success")
	}
	if got := ctrl.Status().State; got != StateIdle {
		t.Fatalf("expected idle after success, got %s", got)
	}
	if calls := fb.uploadCalls(); len(calls) != 1 || calls[0].prior != "" {
		t.Fatalf("create must not carry a prior session id: %+v", calls)
	}
}

func TestSubmitUpdateReplacesBinding(t *testing.T) {
	fb := &fakeBackend{result: &backend.UploadResult{SessionID: "sess-new", Filename: "v2.pdf"}}
	ctrl, registry := setup(fb)
	active, _ := registry.Active()
	_ = registry.Rebind(active.ID, model.SessionBinding{SessionID: "sess-old"})
	stage(t, ctrl, "v2.pdf")

	if err := ctrl.Submit(context.Background(), ModeUpdate); err != nil {
		t.Fatalf("Submit err: %v", err)
	}

	got, _ := registry.Active()
	if got.Binding.SessionID != "sess-new" {
		t.Fatalf("binding not replaced: %+v", got.Binding)
	}
	if len(fb.ended) != 1 || fb.ended[0] != "sess-old" {
		t.Fatalf("previous session not ended: %+v", fb.ended)
	}
	if calls := fb.uploadCalls(); calls[0].prior != "sess-old" {
		t.Fatalf("update must forward the prior session id: %+v", calls)
	}
	last := got.Messages[len(got.Messages)-1]
	if !strings.Contains(last.Text, "updated successfully") {
		t.Fatalf("wrong update wording: %q", last.Text)
	}
}

func TestSubmitUpdateProceedsWhenEndSessionFails(t *testing.T) {
	fb := &fakeBackend{
		result: &backend.UploadResult{SessionID: "sess-new"},
		endErr: errors.New("gone"),
	}
	ctrl, registry := setup(fb)
	active, _ := registry.Active()
	_ = registry.Rebind(active.ID, model.SessionBinding{SessionID: "sess-old"})
	stage(t, ctrl, "v2.pdf")

	if err := ctrl.Submit(context.Background(), ModeUpdate); err != nil {
		t.Fatalf("end-session failure must not abort the update: %v", err)
	}
	got, _ := registry.Active()
	if got.Binding.SessionID != "sess-new" {
		t.Fatalf("binding not replaced: %+v", got.Binding)
	}
}

func TestSubmitFailureLeavesBindingUntouched(t *testing.T) {
	fb := &fakeBackend{err: &backend.APIError{StatusCode: 422, Status: "Unprocessable Entity", Detail: "could not parse PDF"}}
	ctrl, registry := setup(fb)
	active, _ := registry.Active()
	_ = registry.Rebind(active.ID, model.SessionBinding{SessionID: "sess-keep"})
	stage(t, ctrl, "broken.pdf")

	if err := ctrl.Submit(context.Background(), ModeUpdate); err == nil {
		t.Fatal("expected submit error")
	}

	got, _ := registry.Active()
	if got.Binding.SessionID != "sess-keep" {
		t.Fatalf("failed update must keep the prior binding: %+v", got.Binding)
	}
	status := ctrl.Status()
	if status.State != StateFailed {
		t.Fatalf("expected failed state, got %s", status.State)
	}
	if status.Error != "Failed to upload PDF. could not parse PDF" {
		t.Fatalf("unexpected user message: %q", status.Error)
	}
}

func TestSubmitConnectivityFailureMessage(t *testing.T) {
	fb := &fakeBackend{err: &backend.ConnectivityError{Err: errors.New("dial tcp: refused")}}
	ctrl, _ := setup(fb)
	stage(t, ctrl, "doc.pdf")

	_ = ctrl.Submit(context.Background(), ModeCreate)
	if got := ctrl.Status().Error; !strings.Contains(got, "check your connection") {
		t.Fatalf("expected connectivity wording, got %q", got)
	}
}

func TestSecondSubmitWhileUploadingRefused(t *testing.T) {
	fb := &fakeBackend{
		result:  &backend.UploadResult{SessionID: "sess-1"},
		release: make(chan struct{}),
	}
	ctrl, _ := setup(fb)
	stage(t, ctrl, "doc.pdf")

	firstDone := make(chan error, 1)
	go func() { firstDone <- ctrl.Submit(context.Background(), ModeCreate) }()

	// Wait for the first submit to reach the backend.
	deadline := time.After(2 * time.Second)
	for len(fb.uploadCalls()) == 0 {
		select {
		case <-deadline:
			t.Fatal("first submit never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := ctrl.Submit(context.Background(), ModeCreate); !errors.Is(err, derror.ErrUploadInFlight) {
		t.Fatalf("expected ErrUploadInFlight, got %v", err)
	}

	close(fb.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first submit err: %v", err)
	}
	if len(fb.uploadCalls()) != 1 {
		t.Fatalf("expected a single upload call, got %d", len(fb.uploadCalls()))
	}
}

func TestSyntheticProgressCapsBelowCompletion(t *testing.T) {
	fb := &fakeBackend{
		result:  &backend.UploadResult{SessionID: "sess-1"},
		release: make(chan struct{}),
	}
	ctrl, _ := setup(fb)
	stage(t, ctrl, "doc.pdf")

	done := make(chan error, 1)
	go func() { done <- ctrl.Submit(context.Background(), ModeCreate) }()

	// Let synthetic ticks accumulate while the request is outstanding.
	time.Sleep(700 * time.Millisecond)
	status := ctrl.Status()
	if status.State != StateUploading {
		t.Fatalf("expected uploading state, got %s", status.State)
	}
	if status.Progress == 0 || status.Progress > 90 {
		t.Fatalf("synthetic progress out of range: %d", status.Progress)
	}

	close(fb.release)
	if err := <-done; err != nil {
		t.Fatalf("Submit err: %v", err)
	}
}

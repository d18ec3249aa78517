// Package backend is the HTTP client for the remote inference service.
// The service is opaque: it ingests a PDF into a document session, answers
// questions against that session, and releases the session on request.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"pdf-ai-assistant/internal/metrics"
)

// APIError is a non-success response from the inference service. Detail
// carries the server-provided explanation when the body had one.
type APIError struct {
	StatusCode int
	Status     string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Status
}

// ConnectivityError wraps a transport failure where no response arrived.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string { return e.Err.Error() }
func (e *ConnectivityError) Unwrap() error { return e.Err }

// IsConnectivity reports whether err means the service was unreachable.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// UserMessage assembles the human-readable failure text in priority order:
// server detail, then HTTP status text, then a connectivity notice, then
// the raw error.
func UserMessage(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Error()
	}
	if IsConnectivity(err) {
		return "No response from server. Please check your connection."
	}
	return err.Error()
}

// UploadResult is the success payload of an upload or update.
type UploadResult struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	Filename  string `json:"filename"`
}

// Client talks to the inference service over plain HTTP.
type Client struct {
	base       string
	matchCount int
	http       *http.Client
	log        zerolog.Logger
}

// New builds a client for the given base URL. matchCount is the fixed
// retrieval width sent with every question.
func New(baseURL string, matchCount int, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		base:       strings.TrimRight(baseURL, "/"),
		matchCount: matchCount,
		http:       &http.Client{Timeout: timeout},
		log:        log,
	}
}

// UploadPDF posts the document as multipart form data. A non-empty
// priorSessionID is forwarded so the service may reuse or replace the
// existing session state for an update.
func (c *Client) UploadPDF(ctx context.Context, filename string, content io.Reader, priorSessionID string) (*UploadResult, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("copy file content: %w", err)
	}
	if priorSessionID != "" {
		if err := w.WriteField("session_id", priorSessionID); err != nil {
			return nil, fmt.Errorf("write session_id field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/upload_pdf", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	var result UploadResult
	if err := c.do(req, "upload_pdf", &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Ask sends a question against a bound document session and returns the
// raw answer text. The answer may contain HTML and must be sanitized
// before storage or display.
func (c *Client) Ask(ctx context.Context, sessionID, question string) (string, error) {
	payload := struct {
		Question   string `json:"question"`
		SessionID  string `json:"session_id"`
		MatchCount int    `json:"match_count"`
	}{Question: question, SessionID: sessionID, MatchCount: c.matchCount}

	req, err := c.jsonRequest(ctx, "/ask", payload)
	if err != nil {
		return "", err
	}

	var result struct {
		Answer string `json:"answer"`
	}
	if err := c.do(req, "ask", &result); err != nil {
		return "", err
	}
	return result.Answer, nil
}

// EndSession asks the service to release a document session. Callers treat
// failures as best-effort cleanup and only log them.
func (c *Client) EndSession(ctx context.Context, sessionID string) error {
	payload := struct {
		SessionID string `json:"session_id"`
	}{SessionID: sessionID}

	req, err := c.jsonRequest(ctx, "/end_session", payload)
	if err != nil {
		return err
	}
	return c.do(req, "end_session", nil)
}

func (c *Client) jsonRequest(ctx context.Context, path string, payload any) (*http.Request, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, op string, out any) error {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveBackend(op, time.Since(start), false)
		c.log.Warn().Str("op", op).Err(err).Msg("backend unreachable")
		return &ConnectivityError{Err: err}
	}
	defer resp.Body.Close()

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	metrics.ObserveBackend(op, time.Since(start), success)

	if !success {
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Status:     http.StatusText(resp.StatusCode),
		}
		var body struct {
			Detail string `json:"detail"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
			apiErr.Detail = body.Detail
		}
		c.log.Warn().Str("op", op).Int("status", resp.StatusCode).Str("detail", apiErr.Detail).Msg("backend error response")
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

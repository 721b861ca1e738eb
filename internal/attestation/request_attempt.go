// Package attestation implements the two-phase push-attestation protocol
// (capability negotiation then evidence collection) as a sequence of HTTP
// request attempts, each individually classified into ok/conflicts/retry-after
// outcomes. Grounded on request_attempt.py and attestation_task.py.
package attestation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	harnessotel "github.com/hpe-ssg/keylime-perf-harness/internal/otel"
)

// Action classifies a request attempt by the semantic operation its HTTP
// method performs, independent of the specific path it was sent to.
type Action string

const (
	ActionCreate Action = "create"
	ActionRead   Action = "read"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

func actionForMethod(method string) Action {
	switch strings.ToUpper(method) {
	case http.MethodPost:
		return ActionCreate
	case http.MethodGet:
		return ActionRead
	case http.MethodPut, http.MethodPatch:
		return ActionUpdate
	case http.MethodDelete:
		return ActionDelete
	default:
		return ""
	}
}

// HTTPDoer is the minimal client surface a RequestAttempt needs; satisfied by
// *http.Client. A caller embedding the harness can swap in an instrumented
// or rate-limited client, matching the pluggable-transport precedent the
// teacher repo sets for its own HTTP clients.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestAttempt is a single HTTP round trip against the verifier and its
// derived classification. The retry-after value is computed once in Perform;
// OK and Conflicts are derived from the stored status code and body on each
// call, so OK parses the body as JSON every time it is called.
type RequestAttempt struct {
	Method string
	URL    string

	StartTime time.Time
	EndTime   time.Time

	StatusCode   int
	ResponseBody []byte
	Err          error
	// ServerDuration is the server-reported request time, when the verifier
	// supplies one via a Server-Timing-style header; otherwise zero and the
	// wall-clock StartTime/EndTime delta is used instead.
	ServerDuration time.Duration

	// retryAfterSeconds is computed once in Perform from the response's
	// Retry-After header, so later calls to RetryAfter don't need the
	// (by-then-closed) response header back.
	retryAfterSeconds int
}

// Perform issues the request attempt against doer and records its outcome.
// It never returns an error itself: transport failures are captured on Err
// and reflected through OK()/Conflicts()/RetryAfter() exactly like a
// definitive non-2xx response would be.
func Perform(ctx context.Context, doer HTTPDoer, tracer *harnessotel.Tracer, spanOpts harnessotel.AttemptSpanOptions, method, url string, body any) *RequestAttempt {
	a := &RequestAttempt{Method: method, URL: url}

	spanOpts.Action = string(actionForMethod(method))
	spanOpts.Method = method
	spanOpts.URL = url
	ctx, span := tracer.StartAttemptSpan(ctx, spanOpts)
	defer span.End()

	metrics := harnessotel.GetGlobalMetrics()
	action := string(actionForMethod(method))

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			a.Err = fmt.Errorf("encode request body: %w", err)
			harnessotel.RecordError(span, a.Err, "encode")
			metrics.RecordAttempt(ctx, action, 0, false)
			return a
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		a.Err = fmt.Errorf("build request: %w", err)
		harnessotel.RecordError(span, a.Err, "build")
		metrics.RecordAttempt(ctx, action, 0, false)
		return a
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	a.StartTime = time.Now()
	resp, err := doer.Do(req)
	a.EndTime = time.Now()

	if err != nil {
		a.Err = err
		harnessotel.RecordError(span, err, classifyTransportError(err))
		metrics.RecordAttempt(ctx, action, float64(a.EndTime.Sub(a.StartTime).Milliseconds()), false)
		return a
	}
	defer resp.Body.Close()

	a.StatusCode = resp.StatusCode
	a.ResponseBody, _ = io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	a.retryAfterSeconds = computeRetryAfter(resp.Header, a.StatusCode)

	harnessotel.RecordOutcome(span, a.StatusCode, a.OK(), a.Conflicts(), a.RetryAfter())

	latencyMs := float64(0)
	if d, ok := a.Duration(); ok {
		latencyMs = float64(d.Milliseconds())
	}
	metrics.RecordAttempt(ctx, action, latencyMs, a.OK())
	if a.Conflicts() {
		metrics.RecordConflict(ctx, action)
	}
	if a.RetryAfter() > 0 {
		metrics.RecordRetry(ctx, action)
	}
	return a
}

const maxResponseBodyBytes = 64 * 1024

func classifyTransportError(err error) string {
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	return "connect"
}

// Action derives the semantic action from the HTTP method, returning "" for
// methods outside the CRUD-like set the protocol uses.
func (a *RequestAttempt) Action() Action {
	return actionForMethod(a.Method)
}

// Duration is the server-reported request time if one was captured,
// otherwise the wall-clock delta between StartTime and EndTime. Returns
// (0, false) if neither is available, mirroring duration's None semantics.
func (a *RequestAttempt) Duration() (time.Duration, bool) {
	if a.ServerDuration > 0 {
		return a.ServerDuration, true
	}
	if a.StartTime.IsZero() || a.EndTime.IsZero() {
		return 0, false
	}
	return a.EndTime.Sub(a.StartTime), true
}

// responseJSON reports whether the response body parses as a JSON object,
// and OK requires exactly that shape (not merely "some JSON value").
func (a *RequestAttempt) responseJSONObject() bool {
	if len(bytes.TrimSpace(a.ResponseBody)) == 0 {
		return false
	}
	var v map[string]any
	return json.Unmarshal(a.ResponseBody, &v) == nil
}

// OK reports whether the attempt completed without a transport fault, with a
// JSON object response body, and a 2xx status.
func (a *RequestAttempt) OK() bool {
	if a.Err != nil || a.StatusCode == 0 {
		return false
	}
	return a.responseJSONObject() && a.StatusCode >= 200 && a.StatusCode <= 299
}

// Conflicts reports whether the verifier responded 409 Conflict.
func (a *RequestAttempt) Conflicts() bool {
	return a.StatusCode == http.StatusConflict
}

// RetryAfter returns the number of seconds the caller should wait before
// retrying, derived from the response's Retry-After header at Perform time.
// A non-positive header value on a conflicting response is promoted to 1,
// matching request_attempt.py's retry_after property; zero means "do not
// retry".
func (a *RequestAttempt) RetryAfter() int {
	return a.retryAfterSeconds
}

func computeRetryAfter(header http.Header, statusCode int) int {
	if statusCode == 0 {
		return 0
	}
	raw := header.Get("Retry-After")
	seconds, _ := strconv.Atoi(raw)
	if seconds <= 0 && statusCode == http.StatusConflict {
		return 1
	}
	if seconds < 0 {
		return 0
	}
	return seconds
}

// Render returns the JSON-serializable shape result_serializer writes for
// this attempt.
func (a *RequestAttempt) Render() map[string]any {
	retryAfter := a.RetryAfter()
	duration, haveDuration := a.Duration()
	var durationSeconds any
	if haveDuration {
		durationSeconds = duration.Seconds()
	}

	return map[string]any{
		"action":      string(a.Action()),
		"method":      a.Method,
		"url":         a.URL,
		"start_time":  a.StartTime.UnixNano(),
		"end_time":    a.EndTime.UnixNano(),
		"duration":    durationSeconds,
		"ok":          a.OK(),
		"conflicts":   a.Conflicts(),
		"retry_after": retryAfter,
	}
}

// Package dispatch turns one user message into an upstream chat call,
// rotating to the next pool account on rate limiting. Two delivery
// modes: buffered (whole response text) and streaming (fragment relay).
package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nanohit/nocturne/internal/metrics"
	"github.com/nanohit/nocturne/pkg/pool"
	"github.com/rs/zerolog"
)

const (
	originHeader  = "https://venice.ai"
	refererHeader = "https://venice.ai/chat"

	maxErrorBodyBytes = 64 << 10
	maxLineBytes      = 1 << 20
)

// Options configures a Dispatcher
type Options struct {
	Pool         *pool.Pool
	BaseURL      string // upstream chat API base
	DefaultModel string
	SystemPrompt string
	Metrics      *metrics.Metrics // optional
	Logger       zerolog.Logger
}

// Dispatcher sends chat requests through the account pool
type Dispatcher struct {
	pool         *pool.Pool
	base         string
	defaultModel string
	systemPrompt string
	metrics      *metrics.Metrics
	logger       zerolog.Logger
}

// New creates a Dispatcher
func New(opts Options) (*Dispatcher, error) {
	if opts.Pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	return &Dispatcher{
		pool:         opts.Pool,
		base:         strings.TrimRight(opts.BaseURL, "/"),
		defaultModel: opts.DefaultModel,
		systemPrompt: opts.SystemPrompt,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
	}, nil
}

// EventSink receives a streaming response. Begin is called exactly once,
// after a usable upstream response has been secured; Event once per
// content fragment in arrival order; Done once on clean upstream end.
// A transport failure mid-body ends the relay without Done: the events
// already delivered are a valid prefix.
type EventSink interface {
	Begin(remaining int) error
	Event(content string) error
	Done() error
}

// record is one newline-delimited JSON event from the upstream body
type record struct {
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// Chat sends a request in buffered mode: the full response text is
// collected and returned together with the account that served it.
// Rate-limited accounts are exhausted and the next one is tried, up to
// one full pool scan.
func (d *Dispatcher) Chat(ctx context.Context, req Request) (string, *pool.Account, error) {
	start := time.Now()

	attempts := d.pool.Size()
	for i := 0; i < attempts; i++ {
		acct := d.pool.Acquire(ctx)
		if acct == nil {
			d.countChat("exhausted")
			return "", nil, ErrExhausted
		}

		resp, err := d.send(ctx, acct, req)
		if err != nil {
			// Transport failure is terminal in buffered mode
			d.countChat("transport_error")
			return "", acct, fmt.Errorf("upstream request failed: %w", err)
		}

		d.updateRemaining(acct, resp)

		if resp.StatusCode == http.StatusTooManyRequests {
			drain(resp)
			d.pool.MarkExhausted(acct)
			continue
		}

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			resp.Body.Close()
			d.countChat("upstream_error")
			return "", acct, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
		}

		text, err := collectContent(resp.Body)
		resp.Body.Close()
		if err != nil {
			d.countChat("transport_error")
			return "", acct, fmt.Errorf("reading upstream body: %w", err)
		}

		d.countChat("success")
		if d.metrics != nil {
			d.metrics.ChatDuration.WithLabelValues("buffered").Observe(time.Since(start).Seconds())
		}
		return text, acct, nil
	}

	d.countChat("exhausted")
	return "", nil, ErrExhausted
}

// Stream sends a request in streaming mode, relaying content fragments
// to the sink as they arrive. A transport error before anything was
// emitted silently advances to the next account; a 429 rotates as in
// buffered mode; any other upstream status is terminal.
func (d *Dispatcher) Stream(ctx context.Context, req Request, sink EventSink) (*pool.Account, error) {
	start := time.Now()

	attempts := d.pool.Size()
	for i := 0; i < attempts; i++ {
		acct := d.pool.Acquire(ctx)
		if acct == nil {
			d.countStream("exhausted")
			return nil, ErrExhausted
		}

		resp, err := d.send(ctx, acct, req)
		if err != nil {
			// Nothing has been emitted yet; move on to the next account.
			// The account stays eligible: a network failure says nothing
			// about its rate budget.
			d.logger.Warn().
				Err(err).
				Str("email", pool.RedactEmail(acct.Email)).
				Msg("Stream attempt failed, trying next account")
			d.pool.Advance(acct)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			drain(resp)
			d.pool.MarkExhausted(acct)
			continue
		}

		d.updateRemaining(acct, resp)

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
			resp.Body.Close()
			d.countStream("upstream_error")
			return acct, &UpstreamError{Status: resp.StatusCode, Body: string(body)}
		}

		d.relay(acct, resp.Body, sink)
		resp.Body.Close()

		d.countStream("success")
		if d.metrics != nil {
			d.metrics.ChatDuration.WithLabelValues("stream").Observe(time.Since(start).Seconds())
		}
		return acct, nil
	}

	d.countStream("exhausted")
	return nil, ErrExhausted
}

// relay forwards content records to the sink until the body ends. The
// terminal Done is only emitted on a clean upstream end; an error
// mid-body leaves the delivered events as a valid partial prefix.
func (d *Dispatcher) relay(acct *pool.Account, body io.Reader, sink EventSink) {
	if err := sink.Begin(acct.Remaining()); err != nil {
		return
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Kind != "content" {
			continue
		}
		if err := sink.Event(rec.Content); err != nil {
			// Caller went away; stop relaying
			return
		}
		if d.metrics != nil {
			d.metrics.StreamEventsTotal.Inc()
		}
	}

	if err := scanner.Err(); err != nil {
		d.logger.Warn().Err(err).Msg("Upstream stream ended early")
		return
	}

	_ = sink.Done()
}

// send performs one upstream chat call using the account's own client
func (d *Dispatcher) send(ctx context.Context, acct *pool.Account, req Request) (*http.Response, error) {
	payload := d.buildPayload(acct, req)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.base+"/inference/chat", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+acct.JWT())
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Origin", originHeader)
	httpReq.Header.Set("Referer", refererHeader)

	httpc := acct.Client()
	if httpc == nil {
		return nil, fmt.Errorf("account has no transport")
	}
	return httpc.Do(httpReq)
}

// updateRemaining stores the upstream rate hint on the account
func (d *Dispatcher) updateRemaining(acct *pool.Account, resp *http.Response) {
	if v := resp.Header.Get("x-ratelimit-remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			acct.SetRemaining(n)
		}
	}
}

// collectContent concatenates content fragments from a newline-delimited
// JSON body in arrival order. Malformed records are skipped.
func collectContent(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64<<10), maxLineBytes)

	var sb strings.Builder
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		if rec.Kind == "content" {
			sb.WriteString(rec.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
	resp.Body.Close()
}

func (d *Dispatcher) countChat(status string) {
	if d.metrics != nil {
		d.metrics.ChatRequestsTotal.WithLabelValues(status).Inc()
	}
}

func (d *Dispatcher) countStream(status string) {
	if d.metrics != nil {
		d.metrics.StreamRequestsTotal.WithLabelValues(status).Inc()
	}
}

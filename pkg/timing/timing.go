// Package timing captures per-request latency for the protocol core,
// mirroring the connect/send/first-byte/total breakdown a richer HTTP
// client would expose, scaled down to what the core itself observes.
package timing

import (
	"fmt"
	"time"
)

// Metrics holds the timing breakdown for one request/response cycle.
type Metrics struct {
	Connect   time.Duration `json:"connect"`
	Send      time.Duration `json:"send"`
	TTFB      time.Duration `json:"ttfb"`
	TotalTime time.Duration `json:"total_time"`
}

// String provides a human-readable representation of the metrics.
func (m Metrics) String() string {
	return fmt.Sprintf("Connect: %v, Send: %v, TTFB: %v, Total: %v",
		m.Connect, m.Send, m.TTFB, m.TotalTime)
}

// Recorder receives timing events as the core drives a connection. All
// methods must tolerate being called in any order relative to other
// contexts; a single Recorder may be shared process-wide.
type Recorder interface {
	Connect(d time.Duration)
	Send(d time.Duration)
	TTFB(d time.Duration)
	Total(d time.Duration)
}

// noop discards every event. It is the package default.
type noop struct{}

func (noop) Connect(time.Duration) {}
func (noop) Send(time.Duration)    {}
func (noop) TTFB(time.Duration)    {}
func (noop) Total(time.Duration)   {}

// NoopRecorder is the default Recorder.
var NoopRecorder Recorder = noop{}

// Timer accumulates the four events for a single request/response cycle and
// reports them as a Metrics value plus forwards them to an injected Recorder.
type Timer struct {
	recorder Recorder

	start     time.Time
	connStart time.Time
	connEnd   time.Time
	sendStart time.Time
	sendEnd   time.Time
	ttfbStart time.Time
	ttfbEnd   time.Time
}

// NewTimer creates a timing session reporting to rec. A nil rec uses NoopRecorder.
func NewTimer(rec Recorder) *Timer {
	if rec == nil {
		rec = NoopRecorder
	}
	return &Timer{recorder: rec, start: time.Now()}
}

// StartConnect marks the beginning of transport.Open.
func (t *Timer) StartConnect() { t.connStart = time.Now() }

// EndConnect marks the end of transport.Open and reports the Connect event.
func (t *Timer) EndConnect() {
	t.connEnd = time.Now()
	if !t.connStart.IsZero() {
		t.recorder.Connect(t.connEnd.Sub(t.connStart))
	}
}

// StartSend marks the beginning of the write loop in Send.
func (t *Timer) StartSend() { t.sendStart = time.Now() }

// EndSend marks the end of the write loop and reports the Send event.
func (t *Timer) EndSend() {
	t.sendEnd = time.Now()
	if !t.sendStart.IsZero() {
		t.recorder.Send(t.sendEnd.Sub(t.sendStart))
	}
}

// StartTTFB marks the point TTFB is measured from; the core calls it once a
// Send has written its request.
func (t *Timer) StartTTFB() { t.ttfbStart = time.Now() }

// EndTTFB marks the arrival of the response and reports the TTFB event; the
// core calls it once the response header is complete. Only the first call
// on a Timer reports.
func (t *Timer) EndTTFB() {
	if !t.ttfbEnd.IsZero() {
		return // only the first call counts
	}
	t.ttfbEnd = time.Now()
	if !t.ttfbStart.IsZero() {
		t.recorder.TTFB(t.ttfbEnd.Sub(t.ttfbStart))
	}
}

// Metrics returns the timing breakdown gathered so far and reports Total.
func (t *Timer) Metrics() Metrics {
	total := time.Since(t.start)
	t.recorder.Total(total)
	return Metrics{
		Connect:   t.connEnd.Sub(t.connStart),
		Send:      t.sendEnd.Sub(t.sendStart),
		TTFB:      t.ttfbEnd.Sub(t.ttfbStart),
		TotalTime: total,
	}
}

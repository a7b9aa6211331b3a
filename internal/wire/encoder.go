// Package wire implements the line-oriented streaming response protocol
// consumed by the frontend chat SDK. Each frame is one newline-terminated
// line starting with a single-character tag and a colon:
//
//	f:{"messageId":"msg-..."}   exactly once, before any data
//	0:"<escaped chunk>"         one frame per character of the response
//	e:{"finishReason":...}      exactly once
//	d:{"finishReason":...}      exactly once, last
//
// The stream is an append-only sequence of lines, not a JSON document.
package wire

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"repair-agent/internal/domain"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// NewMessageID generates a message identifier of the form
// msg-<unix-ms>-<random base36>.
func NewMessageID() string {
	return fmt.Sprintf("msg-%d-%s", time.Now().UnixMilli(), randBase36(9))
}

func randBase36(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = base36Alphabet[rand.Intn(len(base36Alphabet))]
	}
	return string(b)
}

// EscapeChunk escapes a chunk for embedding in a 0:"..." frame. Backslash
// must be replaced first so the later substitutions are not double-escaped.
func EscapeChunk(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", `\r`)
	return s
}

// PrepareHeaders sets the streaming response headers and flushes them so the
// client sees a live stream before any body bytes arrive.
func PrepareHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

type messageIDPayload struct {
	MessageID string `json:"messageId"`
}

type finishPayload struct {
	FinishReason string       `json:"finishReason"`
	Usage        domain.Usage `json:"usage"`
	IsContinued  bool         `json:"isContinued"`
}

type donePayload struct {
	FinishReason string       `json:"finishReason"`
	Usage        domain.Usage `json:"usage"`
}

// Encoder serializes protocol frames to an HTTP response. Once a write
// fails (typically because the client went away) every later write becomes
// a no-op; the wire protocol has no way to signal mid-stream errors anyway.
type Encoder struct {
	w          http.ResponseWriter
	flusher    http.Flusher
	failed     bool
	dataFrames int
}

// NewEncoder creates an Encoder over the response writer. Writers that do
// not implement http.Flusher are still written to, just without per-frame
// flushing.
func NewEncoder(w http.ResponseWriter) *Encoder {
	flusher, _ := w.(http.Flusher)
	return &Encoder{w: w, flusher: flusher}
}

// WriteMessageID emits the f: frame. Call exactly once, first.
func (e *Encoder) WriteMessageID(messageID string) {
	e.writeJSONFrame('f', messageIDPayload{MessageID: messageID})
}

// WriteText emits the response text as one 0: frame per character.
func (e *Encoder) WriteText(text string) {
	for _, r := range text {
		e.writeLine(`0:"` + EscapeChunk(string(r)) + `"`)
		e.dataFrames++
	}
}

// WriteFinish emits the e: frame. If no data frame was written yet, one
// empty data frame is emitted first so the client parser never sees a body
// with zero data frames.
func (e *Encoder) WriteFinish(usage domain.Usage) {
	if e.dataFrames == 0 {
		e.writeLine(`0:""`)
		e.dataFrames++
	}
	e.writeJSONFrame('e', finishPayload{FinishReason: "stop", Usage: usage})
}

// WriteDone emits the d: frame. Call exactly once, last.
func (e *Encoder) WriteDone(usage domain.Usage) {
	e.writeJSONFrame('d', donePayload{FinishReason: "stop", Usage: usage})
}

func (e *Encoder) writeJSONFrame(tag byte, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		e.failed = true
		return
	}
	e.writeLine(string(tag) + ":" + string(data))
}

func (e *Encoder) writeLine(line string) {
	if e.failed {
		return
	}
	if _, err := fmt.Fprintf(e.w, "%s\n", line); err != nil {
		e.failed = true
		return
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
}

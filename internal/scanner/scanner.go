package scanner

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	DefaultTimeout = 100 * time.Millisecond
	EnterKey       = "Enter"
)

// Key is one raw key press as reported by the terminal, e.g. "7", "A",
// "Enter" or "Shift".
type Key struct {
	Value string    `json:"key"`
	At    time.Time `json:"at"`
}

type State int

const (
	Idle State = iota
	Accumulating
)

func (s State) String() string {
	if s == Accumulating {
		return "accumulating"
	}
	return "idle"
}

// Buffer turns fast key presses into complete codes. A code ends on Enter or
// after timeout of silence, whichever comes first.
type Buffer struct {
	timeout time.Duration
	state   State
	buf     strings.Builder
	last    time.Time
}

func NewBuffer(timeout time.Duration) *Buffer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Buffer{timeout: timeout}
}

func (b *Buffer) State() State {
	return b.state
}

func (b *Buffer) Pending() string {
	return b.buf.String()
}

// Feed consumes one key. It returns a code when this key completed one,
// either the previous code timing out or Enter terminating the current one.
func (b *Buffer) Feed(k Key) (string, bool) {
	if k.Value == EnterKey {
		return b.flush()
	}
	r, ok := printable(k.Value)
	if !ok {
		return "", false
	}

	code, flushed := b.Tick(k.At)
	b.buf.WriteRune(r)
	b.state = Accumulating
	b.last = k.At
	return code, flushed
}

// Tick flushes the pending code if now is past the silence window.
func (b *Buffer) Tick(now time.Time) (string, bool) {
	if b.state != Accumulating || now.Sub(b.last) < b.timeout {
		return "", false
	}
	return b.flush()
}

// Deadline reports when the pending code will time out.
func (b *Buffer) Deadline() (time.Time, bool) {
	if b.state != Accumulating {
		return time.Time{}, false
	}
	return b.last.Add(b.timeout), true
}

func (b *Buffer) Reset() {
	b.buf.Reset()
	b.state = Idle
	b.last = time.Time{}
}

// Flush ends the pending code regardless of timing.
func (b *Buffer) Flush() (string, bool) {
	return b.flush()
}

func (b *Buffer) flush() (string, bool) {
	code := b.buf.String()
	b.Reset()
	if code == "" {
		return "", false
	}
	return code, true
}

// printable accepts single visible characters. Named keys like "Shift" or
// "ArrowUp" and control characters are dropped.
func printable(value string) (rune, bool) {
	if utf8.RuneCountInString(value) != 1 {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(value)
	if !unicode.IsPrint(r) || unicode.IsSpace(r) {
		return 0, false
	}
	return r, true
}

// Listener drives a Buffer from a key channel and hands each code to
// dispatch. Dispatch runs on the listener goroutine, so a new code is never
// resolved while the previous one is still being handled.
type Listener struct {
	timeout time.Duration
}

func NewListener(timeout time.Duration) *Listener {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Listener{timeout: timeout}
}

// Run returns when ctx is done or keys is closed. A pending code is flushed
// when keys closes.
func (l *Listener) Run(ctx context.Context, keys <-chan Key, dispatch func(context.Context, string)) error {
	buf := NewBuffer(l.timeout)
	timer := time.NewTimer(l.timeout)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case k, ok := <-keys:
			if !ok {
				if code, flushed := buf.flush(); flushed {
					dispatch(ctx, code)
				}
				return nil
			}
			if k.At.IsZero() {
				k.At = time.Now()
			}
			if code, flushed := buf.Feed(k); flushed {
				dispatch(ctx, code)
			}
			if deadline, pending := buf.Deadline(); pending {
				timer.Reset(time.Until(deadline))
			} else {
				timer.Stop()
			}
		case now := <-timer.C:
			if code, flushed := buf.Tick(now); flushed {
				dispatch(ctx, code)
			} else if deadline, pending := buf.Deadline(); pending {
				timer.Reset(time.Until(deadline))
			}
		}
	}
}

package core

import (
	"fmt"
	"io"
	"testing"
	"time"
)

func init() {
	LogSetOutput(io.Discard)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		fatal       bool
		recoverable bool
	}{
		{"out of date", fmt.Errorf("acquire: %w", ErrOutOfDate), false, true},
		{"suboptimal", fmt.Errorf("present: %w", ErrSuboptimal), false, true},
		{"device lost", fmt.Errorf("wait: %w", ErrDeviceLost), true, false},
		{"pool exhausted", fmt.Errorf("make set: %w", ErrPoolExhausted), true, false},
		{"shader", fmt.Errorf("lighting: %w", ErrShaderCompilation), true, false},
		{"shadow range", fmt.Errorf("cascades: %w", ErrInvalidShadowRange), false, false},
		{"nil", nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFatal(tt.err); got != tt.fatal {
				t.Errorf("IsFatal() = %v, want %v", got, tt.fatal)
			}
			if got := IsRecoverable(tt.err); got != tt.recoverable {
				t.Errorf("IsRecoverable() = %v, want %v", got, tt.recoverable)
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	if lvl, ok := ParseLogLevel(" WARN "); !ok || lvl != LogLevelWarn {
		t.Errorf("ParseLogLevel(WARN) = %q, %v", lvl, ok)
	}
	if _, ok := ParseLogLevel("verbose"); ok {
		t.Error("ParseLogLevel(verbose) should fail")
	}
}

func TestEventBusStopsAtFirstHandler(t *testing.T) {
	bus := NewEventBus()
	first, second := 0, 0
	a, b := new(int), new(int)

	bus.Register(EVENT_CODE_RESIZED, a, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		first++
		return data.Width == 0
	})
	bus.Register(EVENT_CODE_RESIZED, b, func(code SystemEventCode, sender, listener interface{}, data EventContext) bool {
		second++
		return true
	})

	if bus.Register(EVENT_CODE_RESIZED, a, nil) {
		t.Error("duplicate listener registered")
	}

	bus.Fire(EVENT_CODE_RESIZED, nil, EventContext{Width: 0, Height: 0})
	bus.Fire(EVENT_CODE_RESIZED, nil, EventContext{Width: 800, Height: 600})

	if first != 2 || second != 1 {
		t.Errorf("handlers called first=%d second=%d, want 2 and 1", first, second)
	}

	if !bus.Unregister(EVENT_CODE_RESIZED, a) {
		t.Fatal("unregister failed")
	}
	bus.Fire(EVENT_CODE_RESIZED, nil, EventContext{})
	if first != 2 || second != 2 {
		t.Errorf("after unregister first=%d second=%d", first, second)
	}
}

func TestFrameMetrics(t *testing.T) {
	m := NewFrameMetrics()
	for i := 0; i < 100; i++ {
		m.Update(10 * time.Millisecond)
	}
	if m.FrameTime() != 10*time.Millisecond {
		t.Errorf("FrameTime() = %v", m.FrameTime())
	}
	if m.FPS() < 99 || m.FPS() > 101 {
		t.Errorf("FPS() = %v, want ~100", m.FPS())
	}
	m.Drop()
	if m.Frames() != 100 || m.Dropped() != 1 {
		t.Errorf("Frames()=%d Dropped()=%d", m.Frames(), m.Dropped())
	}
}

func TestClock(t *testing.T) {
	now := time.Unix(100, 0)
	c := &Clock{now: func() time.Time { return now }}
	c.Update()
	if c.Elapsed() != 0 {
		t.Fatal("non-started clock advanced")
	}
	c.Start()
	now = now.Add(250 * time.Millisecond)
	c.Update()
	if c.Elapsed() != 250*time.Millisecond {
		t.Errorf("Elapsed() = %v", c.Elapsed())
	}
}

func TestIdentifierShort(t *testing.T) {
	id := NewIdentifier()
	if len(id.Short()) != 8 || id == NewIdentifier() {
		t.Errorf("unexpected identifier %q", id)
	}
}

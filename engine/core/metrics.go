package core

import (
	"time"

	"github.com/spaghettifunk/umbra/engine/containers"
)

const AVG_COUNT int = 30

// FrameMetrics keeps a rolling average of frame times and the frames
// completed during the last full second.
type FrameMetrics struct {
	samples       *containers.RingQueue[time.Duration]
	average       time.Duration
	frames        int32
	accumulated   time.Duration
	fps           float64
	totalFrames   uint64
	droppedFrames uint64
}

func NewFrameMetrics() *FrameMetrics {
	return &FrameMetrics{
		samples: containers.NewRingQueue[time.Duration](AVG_COUNT),
	}
}

// Update records one presented frame that took frameTime.
func (m *FrameMetrics) Update(frameTime time.Duration) {
	m.samples.Push(frameTime)

	var sum time.Duration
	m.samples.Each(func(d time.Duration) {
		sum += d
	})
	m.average = sum / time.Duration(m.samples.Len())

	// Calculate Frames per second.
	m.accumulated += frameTime
	m.frames++
	if m.accumulated >= time.Second {
		m.fps = float64(m.frames) / m.accumulated.Seconds()
		m.accumulated = 0
		m.frames = 0
	}
	m.totalFrames++
}

// Drop records a frame that was skipped without presenting.
func (m *FrameMetrics) Drop() {
	m.droppedFrames++
}

func (m *FrameMetrics) FPS() float64 {
	return m.fps
}

func (m *FrameMetrics) FrameTime() time.Duration {
	return m.average
}

func (m *FrameMetrics) Frames() uint64 {
	return m.totalFrames
}

func (m *FrameMetrics) Dropped() uint64 {
	return m.droppedFrames
}

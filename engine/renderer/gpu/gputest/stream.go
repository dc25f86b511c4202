package gputest

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

type Op string

const (
	OpBarrier          Op = "barrier"
	OpBeginPass        Op = "begin-pass"
	OpEndPass          Op = "end-pass"
	OpViewport         Op = "viewport"
	OpBindPipeline     Op = "bind-pipeline"
	OpBindSet          Op = "bind-set"
	OpPushConstants    Op = "push-constants"
	OpBindVertexBuffer Op = "bind-vertex-buffer"
	OpBindIndexBuffer  Op = "bind-index-buffer"
	OpDrawIndexed      Op = "draw-indexed"
	OpDraw             Op = "draw"
)

// Command is one recorded call. Only the fields relevant to Op are set.
type Command struct {
	Op       Op
	Image    gpu.Image
	From     gpu.ImageLayout
	To       gpu.ImageLayout
	Pass     gpu.PassDesc
	Pipeline gpu.Pipeline
	Set      gpu.BindingSet
	Index    uint32
	Count    uint32
	Extent   gpu.Extent2D
	Data     []byte
}

// Stream records commands for inspection. The log of the last Begin/End cycle
// is kept until the next Begin.
type Stream struct {
	id        int
	recording bool
	inPass    bool
	destroyed bool
	submits   int
	commands  []Command
	err       error
}

func (s *Stream) ID() int { return s.id }

func (s *Stream) Submits() int { return s.submits }

func (s *Stream) Commands() []Command {
	out := make([]Command, len(s.commands))
	copy(out, s.commands)
	return out
}

// Passes returns the names of the passes begun in the current log, in order.
func (s *Stream) Passes() []string {
	var names []string
	for _, c := range s.commands {
		if c.Op == OpBeginPass {
			names = append(names, c.Pass.Name)
		}
	}
	return names
}

// Count returns how many commands of op were recorded.
func (s *Stream) Count(op Op) int {
	n := 0
	for _, c := range s.commands {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Barriers returns the barriers recorded for img.
func (s *Stream) Barriers(img gpu.Image) []Command {
	var out []Command
	for _, c := range s.commands {
		if c.Op == OpBarrier && c.Image == img {
			out = append(out, c)
		}
	}
	return out
}

func (s *Stream) record(c Command) {
	if !s.recording && s.err == nil {
		s.err = fmt.Errorf("gputest: %s recorded outside Begin/End", c.Op)
	}
	s.commands = append(s.commands, c)
}

func (s *Stream) Begin() error {
	if s.recording {
		return fmt.Errorf("gputest: stream %d already recording", s.id)
	}
	s.recording = true
	s.commands = s.commands[:0]
	s.err = nil
	return nil
}

func (s *Stream) End() error {
	if !s.recording {
		return fmt.Errorf("gputest: stream %d not recording", s.id)
	}
	s.recording = false
	if s.inPass {
		s.inPass = false
		return fmt.Errorf("gputest: stream %d ended inside a pass", s.id)
	}
	return s.err
}

func (s *Stream) Reset() error {
	s.recording = false
	s.inPass = false
	s.err = nil
	return nil
}

func (s *Stream) Barrier(image gpu.Image, from, to gpu.ImageLayout) {
	if s.inPass && s.err == nil {
		s.err = fmt.Errorf("gputest: barrier on %s inside a pass", image.Handle)
	}
	s.record(Command{Op: OpBarrier, Image: image, From: from, To: to})
}

func (s *Stream) BeginPass(desc gpu.PassDesc) {
	if s.inPass && s.err == nil {
		s.err = fmt.Errorf("gputest: pass %q begun inside another pass", desc.Name)
	}
	s.inPass = true
	s.record(Command{Op: OpBeginPass, Pass: desc, Extent: desc.Extent})
}

func (s *Stream) EndPass() {
	if !s.inPass && s.err == nil {
		s.err = fmt.Errorf("gputest: end pass without a pass")
	}
	s.inPass = false
	s.record(Command{Op: OpEndPass})
}

func (s *Stream) SetViewport(extent gpu.Extent2D) {
	s.record(Command{Op: OpViewport, Extent: extent})
}

func (s *Stream) BindPipeline(pipeline gpu.Pipeline) {
	s.record(Command{Op: OpBindPipeline, Pipeline: pipeline})
}

func (s *Stream) BindSet(pipeline gpu.Pipeline, index uint32, set gpu.BindingSet) {
	s.record(Command{Op: OpBindSet, Pipeline: pipeline, Index: index, Set: set})
}

func (s *Stream) PushConstants(pipeline gpu.Pipeline, stages gputypes.ShaderStages, offset uint32, data []byte) {
	s.record(Command{Op: OpPushConstants, Pipeline: pipeline, Index: offset, Data: append([]byte(nil), data...)})
}

func (s *Stream) BindVertexBuffer(buffer gpu.Buffer, offset uint64) {
	s.record(Command{Op: OpBindVertexBuffer})
}

func (s *Stream) BindIndexBuffer(buffer gpu.Buffer, offset uint64, format gputypes.IndexFormat) {
	s.record(Command{Op: OpBindIndexBuffer})
}

func (s *Stream) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	s.record(Command{Op: OpDrawIndexed, Count: indexCount})
}

func (s *Stream) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	s.record(Command{Op: OpDraw, Count: vertexCount})
}

var _ gpu.CommandStream = (*Stream)(nil)

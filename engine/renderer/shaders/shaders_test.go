package shaders

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spaghettifunk/umbra/engine/core"
)

func init() {
	core.LogSetOutput(io.Discard)
}

func TestEverySourceIsEmbedded(t *testing.T) {
	for _, name := range Names() {
		src, err := Source(name)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(src, "fn "+VertexEntry) || !strings.Contains(src, "fn "+FragmentEntry) {
			t.Errorf("%s lacks an entry point", name)
		}
	}
	if _, err := Source("missing"); err == nil {
		t.Error("Source(missing) succeeded")
	}
}

func TestCompileAll(t *testing.T) {
	lib := NewLibrary()
	if err := lib.CompileAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	for _, name := range Names() {
		p, err := lib.Program(name)
		if err != nil {
			t.Fatal(err)
		}
		if len(p.Vertex) < 5 || p.Vertex[0] != spirvMagic {
			t.Errorf("%s: bad module header", name)
		}
	}
}

func TestDepthAndGeometryAgreeOnClipPosition(t *testing.T) {
	const clip = "to_device_clip(camera.view_proj * (draw.model * vec4<f32>(position, 1.0)))"
	for _, name := range []string{Depth, Geometry} {
		src, err := Source(name)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(src, clip) {
			t.Errorf("%s does not compute the shared clip expression", name)
		}
		if !strings.Contains(src, "@builtin(position) @invariant") {
			t.Errorf("%s position output is not invariant", name)
		}
	}
}

func TestCompileRejectsInvalidSource(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", "fn broken( {"},
		{"unknown type", "@fragment fn fs_main() -> @location(0) vec4<nope> { return vec4<nope>(); }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile(tt.name, tt.src); !errors.Is(err, core.ErrShaderCompilation) {
				t.Errorf("Compile() = %v", err)
			}
		})
	}
}

func TestWords(t *testing.T) {
	words, err := Words("ok", []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x03, 0x01, 0x00})
	if err != nil {
		t.Fatal(err)
	}
	if len(words) != 2 || words[0] != spirvMagic || words[1] != 0x00010300 {
		t.Errorf("words = %#x", words)
	}

	bad := [][]byte{nil, {1, 2, 3}, {0, 0, 0, 0}}
	for _, b := range bad {
		if _, err := Words("bad", b); !errors.Is(err, core.ErrShaderCompilation) {
			t.Errorf("Words(%v) = %v", b, err)
		}
	}
}

func TestStaticLibrary(t *testing.T) {
	s := NewStatic()
	p, err := s.Program(Lighting)
	if err != nil || len(p.Vertex) == 0 || p.FragmentEntry != FragmentEntry {
		t.Errorf("Program(lighting) = %+v, %v", p, err)
	}
	if _, err := s.Program("missing"); !errors.Is(err, core.ErrShaderCompilation) {
		t.Errorf("Program(missing) = %v", err)
	}
}

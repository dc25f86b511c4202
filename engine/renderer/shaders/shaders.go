// Package shaders embeds the WGSL source of every render pass and compiles
// it to SPIR-V with naga.
package shaders

import (
	"context"
	"embed"
	"encoding/binary"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/gogpu/naga"
	"golang.org/x/sync/errgroup"

	"github.com/spaghettifunk/umbra/engine/core"
)

const (
	Depth    = "depth"
	Geometry = "geometry"
	Shadow   = "shadow"
	Lighting = "lighting"
	Tonemap  = "tonemap"
	FXAA     = "fxaa"
	UI       = "ui"
)

// Every source declares both stages in one module.
const (
	VertexEntry   = "vs_main"
	FragmentEntry = "fs_main"
)

const spirvMagic = 0x07230203

//go:embed wgsl/*.wgsl
var sources embed.FS

// Program is a compiled shader module with its entry points.
type Program struct {
	Name          string
	Vertex        []uint32
	Fragment      []uint32
	VertexEntry   string
	FragmentEntry string
}

// Library resolves programs by name.
type Library interface {
	Program(name string) (Program, error)
}

// Names lists the embedded programs in sorted order.
func Names() []string {
	names := []string{Depth, Geometry, Shadow, Lighting, Tonemap, FXAA, UI}
	sort.Strings(names)
	return names
}

// Source returns the WGSL text of the named program.
func Source(name string) (string, error) {
	data, err := sources.ReadFile("wgsl/" + name + ".wgsl")
	if err != nil {
		return "", fmt.Errorf("shader %q not found: %w", name, err)
	}
	return string(data), nil
}

// Compile translates WGSL into SPIR-V words.
func Compile(name, source string) ([]uint32, error) {
	spirv, err := naga.Compile(source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrShaderCompilation, name, err)
	}
	return Words(name, spirv)
}

// Words reinterprets a little-endian SPIR-V byte stream as 32-bit words.
func Words(name string, spirv []byte) ([]uint32, error) {
	if len(spirv) == 0 || len(spirv)%4 != 0 {
		return nil, fmt.Errorf("%w: %s: SPIR-V size %d is not a whole number of words", core.ErrShaderCompilation, name, len(spirv))
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("%w: %s: bad SPIR-V magic %#x", core.ErrShaderCompilation, name, words[0])
	}
	return words, nil
}

// Compiled is a Library backed by the embedded sources. Programs compile
// on first use, or all at once with CompileAll.
type Compiled struct {
	mu       sync.Mutex
	programs map[string]Program
}

func NewLibrary() *Compiled {
	return &Compiled{programs: make(map[string]Program)}
}

func (l *Compiled) Program(name string) (Program, error) {
	l.mu.Lock()
	p, ok := l.programs[name]
	l.mu.Unlock()
	if ok {
		return p, nil
	}
	p, err := build(name)
	if err != nil {
		core.LogError(err.Error())
		return Program{}, err
	}
	l.mu.Lock()
	l.programs[name] = p
	l.mu.Unlock()
	return p, nil
}

// CompileAll compiles every embedded program in parallel and stops at the
// first failure.
func (l *Compiled) CompileAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for _, name := range Names() {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := l.Program(name)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	core.LogDebug("compiled %d shader programs", len(Names()))
	return nil
}

func build(name string) (Program, error) {
	src, err := Source(name)
	if err != nil {
		return Program{}, fmt.Errorf("%w: %v", core.ErrShaderCompilation, err)
	}
	words, err := Compile(name, src)
	if err != nil {
		return Program{}, err
	}
	return Program{
		Name:          name,
		Vertex:        words,
		Fragment:      words,
		VertexEntry:   VertexEntry,
		FragmentEntry: FragmentEntry,
	}, nil
}

// Static serves fixed words for every known program. Tests use it to build
// pipelines without running the compiler.
type Static struct {
	Words []uint32
}

func NewStatic() *Static {
	return &Static{Words: []uint32{spirvMagic, 0x00010300, 0, 1, 0}}
}

func (s *Static) Program(name string) (Program, error) {
	if _, err := Source(name); err != nil {
		return Program{}, fmt.Errorf("%w: %v", core.ErrShaderCompilation, err)
	}
	return Program{
		Name:          name,
		Vertex:        s.Words,
		Fragment:      s.Words,
		VertexEntry:   VertexEntry,
		FragmentEntry: FragmentEntry,
	}, nil
}

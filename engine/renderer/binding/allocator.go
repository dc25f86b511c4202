// Package binding allocates descriptor layouts and sets from a single pool.
package binding

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/core"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

// Binding is one slot of a Description. Buffers, Images and Sampler are the
// resources written into a set; they do not affect the layout.
type Binding struct {
	Kind    gpu.BindingKind
	Stages  gputypes.ShaderStages
	Count   uint32
	Buffers []gpu.BufferRange
	Images  []gpu.Image
	Sampler gpu.Sampler
}

// Description lists bindings in slot order.
type Description struct {
	Bindings []Binding
}

// Key is the structural identity of a Description: ordered kind, stages and
// count per binding.
func (d Description) Key() string {
	var sb strings.Builder
	for i, b := range d.Bindings {
		if i > 0 {
			sb.WriteByte('|')
		}
		fmt.Fprintf(&sb, "%d:%d:%d", b.Kind, b.Stages, b.count())
	}
	return sb.String()
}

func (b Binding) count() uint32 {
	if b.Count == 0 {
		return 1
	}
	return b.Count
}

func (d Description) entries() []gpu.LayoutEntry {
	entries := make([]gpu.LayoutEntry, len(d.Bindings))
	for i, b := range d.Bindings {
		entries[i] = gpu.LayoutEntry{
			Binding: uint32(i),
			Kind:    b.Kind,
			Stages:  b.Stages,
			Count:   b.count(),
		}
	}
	return entries
}

func (d Description) writes() []gpu.BindingWrite {
	writes := make([]gpu.BindingWrite, 0, len(d.Bindings))
	for i, b := range d.Bindings {
		if len(b.Buffers) == 0 && len(b.Images) == 0 && !b.Sampler.IsValid() {
			continue
		}
		writes = append(writes, gpu.BindingWrite{
			Binding: uint32(i),
			Kind:    b.Kind,
			Buffers: b.Buffers,
			Images:  b.Images,
			Sampler: b.Sampler,
		})
	}
	return writes
}

// PoolSize returns how many sets the pool must hold: one per material plus
// the per-slot sets and the fixed sets of the passes.
func PoolSize(materials, framesInFlight, fixedSets uint32) uint32 {
	// camera and lights sets per frame slot
	const perSlot = 2
	return materials + framesInFlight*perSlot + fixedSets
}

type setInfo struct {
	layout gpu.BindingLayout
	key    string
}

// Allocator caches layouts by structural key and hands out sets from one pool.
type Allocator struct {
	mu      sync.Mutex
	device  gpu.Device
	pool    gpu.BindingPool
	maxSets uint32
	layouts map[string]gpu.BindingLayout
	sets    map[gpu.BindingSet]setInfo
}

func NewAllocator(device gpu.Device, maxSets uint32) (*Allocator, error) {
	pool, err := device.CreateBindingPool(gpu.PoolDesc{
		MaxSets: maxSets,
		Sizes: map[gpu.BindingKind]uint32{
			gpu.BindingUniformBuffer:        maxSets * 2,
			gpu.BindingStorageBuffer:        maxSets,
			gpu.BindingSampledImage:         maxSets * 4,
			gpu.BindingCombinedImageSampler: maxSets * 8,
			gpu.BindingSampler:              maxSets,
		},
	})
	if err != nil {
		core.LogError("failed to create binding pool: %s", err)
		return nil, err
	}
	return &Allocator{
		device:  device,
		pool:    pool,
		maxSets: maxSets,
		layouts: make(map[string]gpu.BindingLayout),
		sets:    make(map[gpu.BindingSet]setInfo),
	}, nil
}

// MakeLayout returns the cached layout for desc, creating it on first use.
// Equal descriptions always yield the same handle.
func (a *Allocator) MakeLayout(desc Description) (gpu.BindingLayout, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.layoutLocked(desc)
}

func (a *Allocator) layoutLocked(desc Description) (gpu.BindingLayout, error) {
	key := desc.Key()
	if layout, ok := a.layouts[key]; ok {
		return layout, nil
	}
	layout, err := a.device.CreateBindingLayout(desc.entries())
	if err != nil {
		return gpu.BindingLayout{}, err
	}
	a.layouts[key] = layout
	return layout, nil
}

// MakeSet always allocates a new set and writes desc's resources into it.
func (a *Allocator) MakeSet(desc Description) (gpu.BindingSet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	layout, err := a.layoutLocked(desc)
	if err != nil {
		return gpu.BindingSet{}, err
	}
	set, err := a.device.AllocateBindingSet(a.pool, layout)
	if err != nil {
		err = fmt.Errorf("binding set %q (%d live of %d): %w", desc.Key(), len(a.sets), a.maxSets, err)
		core.LogError(err.Error())
		return gpu.BindingSet{}, err
	}
	if err := a.device.WriteBindingSet(set, desc.writes()); err != nil {
		_ = a.device.FreeBindingSet(a.pool, set)
		return gpu.BindingSet{}, err
	}
	a.sets[set] = setInfo{layout: layout, key: desc.Key()}
	return set, nil
}

// Update rewrites the resources of an existing set. The description must
// have the same structure the set was made with.
func (a *Allocator) Update(set gpu.BindingSet, desc Description) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	info, ok := a.sets[set]
	if !ok {
		return fmt.Errorf("binding set %s is not live", set.Handle)
	}
	if info.key != desc.Key() {
		return fmt.Errorf("binding set %s made for %q, updated with %q", set.Handle, info.key, desc.Key())
	}
	return a.device.WriteBindingSet(set, desc.writes())
}

func (a *Allocator) Free(set gpu.BindingSet) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sets[set]; !ok {
		return fmt.Errorf("binding set %s is not live", set.Handle)
	}
	delete(a.sets, set)
	return a.device.FreeBindingSet(a.pool, set)
}

// LayoutOf returns the layout a live set was allocated with.
func (a *Allocator) LayoutOf(set gpu.BindingSet) (gpu.BindingLayout, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	info, ok := a.sets[set]
	return info.layout, ok
}

func (a *Allocator) LiveSets() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sets)
}

func (a *Allocator) CachedLayouts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.layouts)
}

// Destroy releases the pool and every cached layout. It returns the number of
// sets still live, which are released with the pool.
func (a *Allocator) Destroy() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	live := len(a.sets)
	if live > 0 {
		core.LogWarn("binding allocator destroyed with %d live sets", live)
	}
	a.device.DestroyBindingPool(a.pool)
	for key, layout := range a.layouts {
		a.device.DestroyBindingLayout(layout)
		delete(a.layouts, key)
	}
	a.sets = make(map[gpu.BindingSet]setInfo)
	a.pool = gpu.BindingPool{}
	return live
}

package vulkan

import (
	"fmt"
	"sync"

	"github.com/spaghettifunk/umbra/engine/containers"
)

type LockGroup string

const (
	// ResourceManagement guards the handle arenas.
	ResourceManagement LockGroup = "resource_management"
	// QueueManagement serializes submits and presents. Vulkan requires
	// external synchronization on a queue.
	QueueManagement LockGroup = "queue_management"
	// PipelineManagement guards the render pass and framebuffer caches.
	PipelineManagement LockGroup = "pipeline_management"
)

type lockPool struct {
	mu    sync.Mutex
	locks map[LockGroup]*sync.Mutex
}

func newLockPool() *lockPool {
	return &lockPool{locks: make(map[LockGroup]*sync.Mutex)}
}

func (p *lockPool) lock(group LockGroup) *sync.Mutex {
	p.mu.Lock()
	l, ok := p.locks[group]
	if !ok {
		l = &sync.Mutex{}
		p.locks[group] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l
}

// SafeCall runs fn while holding the group's lock.
func (p *lockPool) SafeCall(group LockGroup, fn func() error) error {
	l := p.lock(group)
	defer l.Unlock()
	return fn()
}

// Arena access goes through these so every lookup holds the resource lock.

func insert[T any](d *Device, arena *containers.Arena[T], value T) containers.Handle {
	l := d.locks.lock(ResourceManagement)
	defer l.Unlock()
	return arena.Insert(value)
}

func lookup[T any](d *Device, arena *containers.Arena[T], h containers.Handle, kind string) (T, error) {
	l := d.locks.lock(ResourceManagement)
	defer l.Unlock()
	v, ok := arena.Get(h)
	if !ok {
		return v, fmt.Errorf("vulkan: unknown %s %s", kind, h)
	}
	return v, nil
}

func remove[T any](d *Device, arena *containers.Arena[T], h containers.Handle) (T, bool) {
	l := d.locks.lock(ResourceManagement)
	defer l.Unlock()
	return arena.Remove(h)
}

package metadata

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/gogpu/gputypes"

	"github.com/spaghettifunk/umbra/engine/renderer/components"
	"github.com/spaghettifunk/umbra/engine/renderer/gpu"
)

type RendererDebugViewMode uint32

const (
	RENDERER_VIEW_MODE_DEFAULT  RendererDebugViewMode = 0
	RENDERER_VIEW_MODE_ALBEDO   RendererDebugViewMode = 1
	RENDERER_VIEW_MODE_POSITION RendererDebugViewMode = 2
	RENDERER_VIEW_MODE_NORMALS  RendererDebugViewMode = 3
	RENDERER_VIEW_MODE_DEPTH    RendererDebugViewMode = 4
	RENDERER_VIEW_MODE_CASCADES RendererDebugViewMode = 5
)

func (m RendererDebugViewMode) IsValid() bool {
	return m <= RENDERER_VIEW_MODE_CASCADES
}

/**
 * @brief One opaque draw batch. The geometry pass binds the material set and
 * pushes the transform, then issues an indexed draw.
 */
type DrawItem struct {
	VertexBuffer gpu.Buffer
	IndexBuffer  gpu.Buffer
	IndexFormat  gputypes.IndexFormat
	IndexCount   uint32
	FirstIndex   uint32
	VertexOffset int32
	/** @brief Material binding set, made by the binding allocator. */
	Material  gpu.BindingSet
	Transform mgl32.Mat4
	/** @brief Skipped by the shadow pass when false. */
	CastShadows bool
}

/**
 * @brief A structure which is generated by the application and sent once
 * to the renderer to render a given frame.
 */
type RenderPacket struct {
	DeltaTime float64
	Camera    *components.Camera
	Ambient   mgl32.Vec3
	Lights    []Light
	DrawItems []DrawItem
}

// RenderQueue collects draw items for one frame. The geometry pass drains it.
type RenderQueue struct {
	items []DrawItem
}

func NewRenderQueue(capacity int) *RenderQueue {
	return &RenderQueue{items: make([]DrawItem, 0, capacity)}
}

func (q *RenderQueue) Enqueue(items ...DrawItem) {
	q.items = append(q.items, items...)
}

func (q *RenderQueue) Len() int {
	return len(q.items)
}

// Items returns the queued items without draining them.
func (q *RenderQueue) Items() []DrawItem {
	return q.items
}

// Drain empties the queue and returns what it held. The backing array is
// handed to the caller, the queue starts over with a fresh one.
func (q *RenderQueue) Drain() []DrawItem {
	items := q.items
	q.items = make([]DrawItem, 0, cap(items))
	return items
}

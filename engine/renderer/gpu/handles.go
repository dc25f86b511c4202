package gpu

import (
	"github.com/spaghettifunk/umbra/engine/containers"
)

// Handles are opaque index/generation pairs owned by a Device. The zero value
// of every handle is invalid.

type Image struct{ containers.Handle }

type Sampler struct{ containers.Handle }

type Buffer struct{ containers.Handle }

type BindingLayout struct{ containers.Handle }

type BindingSet struct{ containers.Handle }

type BindingPool struct{ containers.Handle }

type Pipeline struct{ containers.Handle }

type Fence struct{ containers.Handle }

type Semaphore struct{ containers.Handle }

type Swapchain struct{ containers.Handle }

package renderer

type FrameState uint8

const (
	StateIdle FrameState = iota
	StateAcquiring
	StateRecording
	StateSubmitted
	StatePresenting
	// StateResizing is entered whenever the surface is stale or the window
	// changed size. It is left once the surface and every surface sized
	// resource are rebuilt.
	StateResizing
)

func (s FrameState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateAcquiring:
		return "Acquiring"
	case StateRecording:
		return "Recording"
	case StateSubmitted:
		return "Submitted"
	case StatePresenting:
		return "Presenting"
	case StateResizing:
		return "Resizing"
	}
	return "Unknown"
}

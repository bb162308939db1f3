package status

// State is the lifecycle stage of a chunk worker.
type State int32

const (
	Preparing State = iota
	Connecting
	Connected
	Downloading
	Finished
	Errored
)

// String returns the display name of s.
func (s State) String() string {
	switch s {
	case Preparing:
		return "preparing"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Downloading:
		return "downloading"
	case Finished:
		return "finished"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is Finished or Errored.
func (s State) IsTerminal() bool {
	return s == Finished || s == Errored
}

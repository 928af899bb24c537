package converge

import "github.com/MY221B/bird-download/internal/assets"

// State is a slug's position in the convergence state machine.
type State int

const (
	NeedsDownload State = iota
	NeedsUpload
	NeedsSound
	Satisfied
	Unrecoverable
)

func (s State) String() string {
	switch s {
	case NeedsDownload:
		return "needs_download"
	case NeedsUpload:
		return "needs_upload"
	case NeedsSound:
		return "needs_sound"
	case Satisfied:
		return "satisfied"
	case Unrecoverable:
		return "unrecoverable"
	default:
		return "unknown"
	}
}

// Classify derives the state from observed assets. A slug whose cloud
// metadata already carries photos does not need local images.
func Classify(st assets.State) State {
	switch {
	case !st.Uploaded() && !st.HasLocalImages():
		return NeedsDownload
	case !st.Uploaded():
		return NeedsUpload
	case !st.HasSound:
		return NeedsSound
	default:
		return Satisfied
	}
}

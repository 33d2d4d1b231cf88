package smartcmd

// State is the observable stage of the pipeline.
type State int32

const (
	Idle State = iota
	GatedCheck
	FetchingContext
	Searching
	ResultReady
	Acknowledging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case GatedCheck:
		return "gated-check"
	case FetchingContext:
		return "fetching-context"
	case Searching:
		return "searching"
	case ResultReady:
		return "result-ready"
	case Acknowledging:
		return "acknowledging"
	default:
		return "unknown"
	}
}

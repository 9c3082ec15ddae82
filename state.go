package lazyload

// State is the loading state of a Resource.
type State uint8

const (
	Absent State = iota
	Loading
	Ready
	Error
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Tier is the quality level of a Tiered resource's content.
type Tier uint8

const (
	TierNone Tier = iota
	TierPreview
	TierFull
)

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "none"
	case TierPreview:
		return "preview"
	case TierFull:
		return "full"
	default:
		return "unknown"
	}
}

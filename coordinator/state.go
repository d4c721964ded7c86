package coordinator

type State uint8

const (
	Idle State = iota
	Selecting
	DispatchingFit
	CollectingFit
	AggregatingFit
	DispatchingEvaluate
	CollectingEvaluate
	AggregatingEvaluate
	Published
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case DispatchingFit:
		return "dispatching_fit"
	case CollectingFit:
		return "collecting_fit"
	case AggregatingFit:
		return "aggregating_fit"
	case DispatchingEvaluate:
		return "dispatching_evaluate"
	case CollectingEvaluate:
		return "collecting_evaluate"
	case AggregatingEvaluate:
		return "aggregating_evaluate"
	case Published:
		return "published"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

type Phase string

const (
	PhaseFit      Phase = "fit"
	PhaseEvaluate Phase = "evaluate"
)

func (p Phase) states() (dispatching, collecting, aggregating State) {
	if p == PhaseEvaluate {
		return DispatchingEvaluate, CollectingEvaluate, AggregatingEvaluate
	}

	return DispatchingFit, CollectingFit, AggregatingFit
}

package model

// OutcomeKind tags the result of evaluating a single source.
type OutcomeKind int

const (
	// OutcomePending marks a source that was never reached, because an
	// earlier fatal error aborted the batch.
	OutcomePending OutcomeKind = iota
	OutcomeSucceeded
	OutcomeSkipped
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomePending:
		return "pending"
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// SkipReason explains why a source was skipped.
type SkipReason int

const (
	SkipNone SkipReason = iota
	// SkipPointSource: both axes are zero, there is no ellipse to project.
	SkipPointSource
	// SkipFitFailed: the projected samples admit no stable ellipse.
	SkipFitFailed
)

func (r SkipReason) String() string {
	switch r {
	case SkipNone:
		return "none"
	case SkipPointSource:
		return "point_source"
	case SkipFitFailed:
		return "fit_failed"
	default:
		return "unknown"
	}
}

// SourceOutcome is the per-source result of a Gaussian parameter evaluation.
type SourceOutcome struct {
	Index  int
	Kind   OutcomeKind
	Reason SkipReason

	// Apparent is the ellipse recovered in the tangent plane (succeeded only).
	Apparent Ellipse
	A, B, C  float64

	Err error
}

// Label returns the metrics label for the outcome: the kind, or the skip
// reason for skipped sources.
func (o SourceOutcome) Label() string {
	if o.Kind == OutcomeSkipped {
		return o.Reason.String()
	}
	return o.Kind.String()
}

// OutcomeSummary counts outcomes by kind and skip reason.
type OutcomeSummary struct {
	Succeeded    int
	PointSources int
	FitFailed    int
	Fatal        int
	Pending      int
}

// Skipped returns the number of skipped sources of any reason.
func (s OutcomeSummary) Skipped() int { return s.PointSources + s.FitFailed }

// SummarizeOutcomes tallies a slice of outcomes.
func SummarizeOutcomes(outcomes []SourceOutcome) OutcomeSummary {
	var s OutcomeSummary
	for _, o := range outcomes {
		switch o.Kind {
		case OutcomeSucceeded:
			s.Succeeded++
		case OutcomeSkipped:
			if o.Reason == SkipFitFailed {
				s.FitFailed++
			} else {
				s.PointSources++
			}
		case OutcomeFatal:
			s.Fatal++
		default:
			s.Pending++
		}
	}
	return s
}

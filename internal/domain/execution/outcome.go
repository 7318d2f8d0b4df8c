package execution

// OutcomeKind tags the result of a single attempt.
type OutcomeKind int

const (
	// OutcomeValid means the operation returned a result accepted by the validator.
	OutcomeValid OutcomeKind = iota
	// OutcomeInvalid means the operation returned normally but the result was rejected.
	OutcomeInvalid
	// OutcomeThrown means the operation failed with an error or panicked.
	OutcomeThrown
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeValid:
		return "valid"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeThrown:
		return "thrown"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of one attempt. The retry loop branches on
// Kind: only OutcomeThrown triggers a checkpoint lookup.
type Outcome struct {
	Kind   OutcomeKind
	Result any
	Reason string
	Err    error
}

func Valid(result any) Outcome {
	return Outcome{Kind: OutcomeValid, Result: result}
}

func Invalid(result any, reason string) Outcome {
	return Outcome{Kind: OutcomeInvalid, Result: result, Reason: reason}
}

func Thrown(err error) Outcome {
	return Outcome{Kind: OutcomeThrown, Err: err}
}

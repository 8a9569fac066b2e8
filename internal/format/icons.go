package format

// Outcome classifies an evaluated prediction.
type Outcome int

const (
	OutcomeCorrect Outcome = iota
	OutcomeIncorrect
	OutcomeError
)

// Outcome markers for display (renderers can apply their own styling).
const (
	CorrectIcon   = "✓"
	IncorrectIcon = "✗"
	ErrorIcon     = "!"
)

// OutcomeOf maps a prediction result to its outcome. An error wins over the
// correctness flag.
func OutcomeOf(correct bool, err error) Outcome {
	switch {
	case err != nil:
		return OutcomeError
	case correct:
		return OutcomeCorrect
	}
	return OutcomeIncorrect
}

// Icon returns the marker for the outcome.
func (o Outcome) Icon() string {
	switch o {
	case OutcomeCorrect:
		return CorrectIcon
	case OutcomeIncorrect:
		return IncorrectIcon
	}
	return ErrorIcon
}

// String returns a lowercase label for the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeCorrect:
		return "correct"
	case OutcomeIncorrect:
		return "incorrect"
	}
	return "error"
}

package scoring

// Grade is the feedback band shown next to a score.
type Grade string

const (
	GradePerfect  Grade = "Perfect!"
	GradeGreat    Grade = "Great job!"
	GradeGood     Grade = "Good try!"
	GradePractice Grade = "Keep practicing!"
)

// GradeFor maps a score to its feedback band.
func GradeFor(score int) Grade {
	switch {
	case score >= 90:
		return GradePerfect
	case score >= 70:
		return GradeGreat
	case score >= 50:
		return GradeGood
	default:
		return GradePractice
	}
}

// Result bundles a score with the inputs it was derived from.
type Result struct {
	Score                int    `json:"score"`
	Grade                Grade  `json:"grade"`
	NormalizedTarget     string `json:"normalized_target"`
	NormalizedTranscript string `json:"normalized_transcript"`
}

// Evaluate scores transcript against target and attaches the grade and the
// normalised forms used for comparison.
func Evaluate(target, transcript string) Result {
	s := Score(target, transcript)
	return Result{
		Score:                s,
		Grade:                GradeFor(s),
		NormalizedTarget:     Normalize(target),
		NormalizedTranscript: Normalize(transcript),
	}
}

package stage

// Degradation records a best-effort sub-step that failed without failing
// its stage (a skipped thumbnail size, an omitted encode tier, a missing
// streaming variant).
type Degradation struct {
	Step   string `json:"step"`
	Reason string `json:"reason"`
}

// Result aggregates a stage run's non-fatal outcomes. Fatal failures are
// ordinary error returns; Result only exists so degraded runs can report
// what they skipped.
type Result struct {
	Degradations []Degradation
}

// Degrade records a skipped sub-step.
func (r *Result) Degrade(step, reason string) {
	r.Degradations = append(r.Degradations, Degradation{Step: step, Reason: reason})
}

// Degraded reports whether any sub-step was skipped.
func (r *Result) Degraded() bool { return len(r.Degradations) > 0 }

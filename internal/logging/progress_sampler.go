package logging

import "math"

// ProgressSampler picks the install progress updates worth a log line: the
// first update of every section, then one each time the percentage crosses a
// step boundary.
type ProgressSampler struct {
	step    float64
	section string
	next    float64
}

// NewProgressSampler returns a sampler logging every step percent. A step of
// zero or less means 10.
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 10
	}
	return &ProgressSampler{step: step}
}

// ShouldLog reports whether an update at percent within section should be
// logged. A negative percent means the total is unknown; such updates are
// logged only when the section changes.
func (s *ProgressSampler) ShouldLog(section string, percent float64) bool {
	if s == nil {
		return true
	}
	changed := section != s.section
	if changed {
		s.section = section
		s.next = 0
	}
	if percent < 0 {
		return changed
	}
	if percent < s.next && !changed {
		return false
	}
	s.next = (math.Floor(percent/s.step) + 1) * s.step
	return true
}

// Reset forgets the current section, so the next update is logged.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.section = ""
	s.next = 0
}

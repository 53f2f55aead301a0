package model

import "time"

// Pattern learning constants. Empirically tuned; changing them changes which
// transactions get auto-categorized, so tests pin the current values.
const (
	// NewPatternConfidence is the confidence a freshly derived pattern starts at.
	NewPatternConfidence = 60
	// ReinforceStep is added each time an existing pattern is confirmed again.
	ReinforceStep = 10
	// MaxPatternConfidence caps reinforcement.
	MaxPatternConfidence = 100
)

// LearnedPattern is a glob-style text pattern derived from confirmed matches.
// Patterns are embedded on the partner or category that owns them.
type LearnedPattern struct {
	CreatedAt  time.Time `json:"createdAt"`
	Pattern    string    `json:"pattern"`
	SourceIDs  []string  `json:"sourceIds"` // transaction/file IDs that produced or reinforced it
	Confidence int       `json:"confidence"`
	UsageCount int       `json:"usageCount"`
}

// Reinforce bumps confidence for a repeated confirmation and records the
// source that triggered it. Reports whether anything changed.
func (p *LearnedPattern) Reinforce(sourceID string) bool {
	changed := false
	if p.Confidence < MaxPatternConfidence {
		p.Confidence += ReinforceStep
		if p.Confidence > MaxPatternConfidence {
			p.Confidence = MaxPatternConfidence
		}
		changed = true
	}
	if !containsString(p.SourceIDs, sourceID) {
		p.SourceIDs = append(p.SourceIDs, sourceID)
		changed = true
	}
	if changed {
		p.UsageCount++
	}
	return changed
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

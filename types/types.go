package types

import "time"

// ImageRecord is the persisted classification result for one image
type ImageRecord struct {
	Path   string   `json:"path"`
	AITags []string `json:"ai_tags"`
}

// Guess is a single label prediction with its confidence in [0,1]
type Guess struct {
	Label      string
	Confidence float32
}

// ScanStats summarizes one classification run
type ScanStats struct {
	RunID       string
	Source      string
	Total       int
	Processed   int
	Succeeded   int
	Failed      int
	Collisions  int
	Checkpoints int
	Interrupted bool
	Duration    time.Duration
}

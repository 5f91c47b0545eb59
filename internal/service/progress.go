package service

import (
	"math"
	"time"

	"secretary-backend/internal/model"
)

// Fabricated progress curve shown while the backend has not yet reported an
// authoritative status. Rises to 0.7 over the first minute, then wobbles in a
// narrow band so the bar keeps moving instead of sitting pinned near 100%
// against a slow backend.
const (
	fakeRampDuration = 60 * time.Second
	fakeRampTarget   = 0.7
	wobbleCenter     = 0.815
	wobbleAmplitude  = 0.135
	wobblePeriodSecs = 10.0
)

// FakeProgress maps elapsed wall-clock time to an estimated progress value.
// Pure function of elapsed time so the curve is testable without timers.
func FakeProgress(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}

	if elapsed <= fakeRampDuration {
		return fakeRampTarget * elapsed.Seconds() / fakeRampDuration.Seconds()
	}

	past := elapsed.Seconds() - fakeRampDuration.Seconds()
	return wobbleCenter + wobbleAmplitude*math.Sin(past/wobblePeriodSecs)
}

// StageForProgress derives the displayed pipeline stage from a fake progress
// value. Only used until an external update supplies the real stage.
func StageForProgress(p float64) model.Stage {
	switch {
	case p < 0.72:
		return model.StageOCR
	case p < 0.98:
		return model.StageIndex
	default:
		return model.StageReady
	}
}

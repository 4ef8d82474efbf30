// Package adapter normalizes raw detector output into canonical per-frame
// compliance readings restricted to the PPE classes a zone mandates.
package adapter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
)

// ErrMalformedFrame marks a structurally invalid detector payload. Such
// frames are dropped before they reach the verification window.
var ErrMalformedFrame = errors.New("malformed frame")

// Requirements parameterizes normalization for one zone.
type Requirements struct {
	Mandatory     []models.PPEClass
	MinConfidence func(models.PPEClass) float64
}

// Normalize converts a raw frame into a FrameReading. A mandatory class is
// present when some positive detection of it meets the per-class confidence
// threshold and no negative detection ("no-helmet" style labels) does.
// Normalize is pure and never mutates its inputs.
func Normalize(raw models.RawFrame, req Requirements) (models.FrameReading, error) {
	if strings.TrimSpace(raw.CameraID) == "" {
		return models.FrameReading{}, fmt.Errorf("%w: missing camera id", ErrMalformedFrame)
	}
	if raw.Timestamp.IsZero() {
		return models.FrameReading{}, fmt.Errorf("%w: missing timestamp", ErrMalformedFrame)
	}

	// Best positive and negative score per mandatory class.
	positive := make(map[models.PPEClass]float64)
	negative := make(map[models.PPEClass]float64)
	for _, det := range raw.Detections {
		class, negated, ok := canonicalClass(det.Class)
		if !ok {
			continue
		}
		if negated {
			if det.Score > negative[class] {
				negative[class] = det.Score
			}
		} else if det.Score > positive[class] {
			positive[class] = det.Score
		}
	}

	reading := models.FrameReading{
		CameraID:  raw.CameraID,
		Timestamp: raw.Timestamp,
		Scores:    make(map[models.PPEClass]float64, len(req.Mandatory)),
	}
	for _, class := range req.Mandatory {
		threshold := defaultConfidence
		if req.MinConfidence != nil {
			threshold = req.MinConfidence(class)
		}
		score := positive[class]
		reading.Scores[class] = score

		if score >= threshold && negative[class] < threshold {
			reading.Present = append(reading.Present, class)
		} else {
			reading.Missing = append(reading.Missing, class)
		}
	}

	return reading, nil
}

const defaultConfidence = 0.5

// canonicalClass maps a detector label onto a PPE class. Detectors disagree
// on naming ("hardhat", "safety_vest", "NO-Hardhat"), so matching is by
// substring on the lowercased label.
func canonicalClass(label string) (class models.PPEClass, negated bool, ok bool) {
	t := strings.ToLower(strings.TrimSpace(label))
	if t == "" {
		return "", false, false
	}

	negated = strings.HasPrefix(t, "no-") || strings.HasPrefix(t, "no_") || strings.HasPrefix(t, "no ")

	switch {
	case strings.Contains(t, "helmet"), strings.Contains(t, "hardhat"), strings.Contains(t, "hard_hat"):
		return models.PPEHelmet, negated, true
	case strings.Contains(t, "vest"):
		return models.PPEVest, negated, true
	case strings.Contains(t, "glove"):
		return models.PPEGloves, negated, true
	case strings.Contains(t, "boot"), strings.Contains(t, "shoe"):
		return models.PPEBoots, negated, true
	}
	return "", false, false
}

package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
)

func fixedConfidence(v float64) func(models.PPEClass) float64 {
	return func(models.PPEClass) float64 { return v }
}

func TestNormalizeRejectsMalformedFrames(t *testing.T) {
	req := Requirements{Mandatory: []models.PPEClass{models.PPEHelmet}}

	tests := []struct {
		name string
		raw  models.RawFrame
	}{
		{"missing camera id", models.RawFrame{Timestamp: time.Now()}},
		{"blank camera id", models.RawFrame{CameraID: "   ", Timestamp: time.Now()}},
		{"missing timestamp", models.RawFrame{CameraID: "cam-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.raw, req)
			require.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestNormalizeConfidenceThreshold(t *testing.T) {
	req := Requirements{
		Mandatory:     []models.PPEClass{models.PPEHelmet, models.PPEVest},
		MinConfidence: fixedConfidence(0.5),
	}
	raw := models.RawFrame{
		CameraID:  "cam-1",
		Timestamp: time.Now(),
		Detections: []models.RawDetection{
			{Class: "helmet", Score: 0.9},
			{Class: "vest", Score: 0.3}, // below threshold, counts as absent
		},
	}

	reading, err := Normalize(raw, req)
	require.NoError(t, err)

	assert.Equal(t, []models.PPEClass{models.PPEHelmet}, reading.Present)
	assert.Equal(t, []models.PPEClass{models.PPEVest}, reading.Missing)
	assert.False(t, reading.Compliant())
}

func TestNormalizeRestrictsToMandatoryClasses(t *testing.T) {
	// A low-risk zone ignores gloves/boots detections entirely.
	req := Requirements{
		Mandatory:     []models.PPEClass{models.PPEHelmet, models.PPEVest},
		MinConfidence: fixedConfidence(0.5),
	}
	raw := models.RawFrame{
		CameraID:  "cam-1",
		Timestamp: time.Now(),
		Detections: []models.RawDetection{
			{Class: "hardhat", Score: 0.8},
			{Class: "safety_vest", Score: 0.7},
			{Class: "gloves", Score: 0.9},
			{Class: "boots", Score: 0.9},
			{Class: "person", Score: 0.99}, // unrelated label ignored
		},
	}

	reading, err := Normalize(raw, req)
	require.NoError(t, err)

	assert.ElementsMatch(t, []models.PPEClass{models.PPEHelmet, models.PPEVest}, reading.Present)
	assert.Empty(t, reading.Missing)
	assert.Len(t, reading.Scores, 2)
}

func TestNormalizeNegativeLabelsForceAbsent(t *testing.T) {
	req := Requirements{
		Mandatory:     []models.PPEClass{models.PPEHelmet},
		MinConfidence: fixedConfidence(0.5),
	}
	raw := models.RawFrame{
		CameraID:  "cam-1",
		Timestamp: time.Now(),
		Detections: []models.RawDetection{
			{Class: "helmet", Score: 0.7},
			{Class: "NO-Hardhat", Score: 0.8},
		},
	}

	reading, err := Normalize(raw, req)
	require.NoError(t, err)

	assert.Equal(t, []models.PPEClass{models.PPEHelmet}, reading.Missing)
}

func TestCanonicalClassAliases(t *testing.T) {
	tests := []struct {
		label   string
		class   models.PPEClass
		negated bool
		ok      bool
	}{
		{"helmet", models.PPEHelmet, false, true},
		{"Hardhat", models.PPEHelmet, false, true},
		{"no-hardhat", models.PPEHelmet, true, true},
		{"safety vest", models.PPEVest, false, true},
		{"hand_glove", models.PPEGloves, false, true},
		{"safety_shoe", models.PPEBoots, false, true},
		{"no_boots", models.PPEBoots, true, true},
		{"person", "", false, false},
		{"", "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			class, negated, ok := canonicalClass(tt.label)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.class, class)
				assert.Equal(t, tt.negated, negated)
			}
		})
	}
}

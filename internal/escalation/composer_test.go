package escalation

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
)

var (
	testWorker = models.Worker{ID: "W001", Name: "Ali", Phone: "+60123456789", Active: true}
	testZone   = models.Zone{ID: "z-1", Name: "Welding Bay", Risk: models.RiskHigh}
)

func testViolation() models.Violation {
	return models.Violation{
		ID:         "v-1",
		ZoneID:     "z-1",
		CameraID:   "cam-1",
		OccurredAt: time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC),
		Missing:    []models.PPEClass{models.PPEHelmet, models.PPEGloves},
		Risk:       models.RiskHigh,
	}
}

func strikeWithSequence(seq int) models.Strike {
	return models.Strike{ID: "s-1", WorkerID: "W001", ViolationID: "v-1", Sequence: seq}
}

func TestEmphasizedExactlyOnMultiples(t *testing.T) {
	c := Composer{SiteName: "Acme Steel", Multiple: 3}

	for seq := 1; seq <= 12; seq++ {
		msg := c.Compose(strikeWithSequence(seq), testViolation(), testWorker, testZone)
		assert.Equal(t, seq%3 == 0, msg.Emphasized, "sequence %d", seq)
	}
}

func TestMessageToneBySequence(t *testing.T) {
	c := Composer{SiteName: "Acme Steel", Multiple: 3}

	tests := []struct {
		seq    int
		header string
	}{
		{1, "SAFETY NOTICE"},
		{2, "SAFETY REMINDER"},
		{3, "SAFETY WARNING"},
		{4, "SAFETY WARNING"},
		{11, "SAFETY WARNING"},
	}

	for _, tt := range tests {
		msg := c.Compose(strikeWithSequence(tt.seq), testViolation(), testWorker, testZone)
		assert.Contains(t, msg.Text, tt.header, "sequence %d", tt.seq)
	}
}

func TestMessageContent(t *testing.T) {
	c := Composer{SiteName: "Acme Steel", Multiple: 3}
	msg := c.Compose(strikeWithSequence(1), testViolation(), testWorker, testZone)

	assert.Equal(t, "+60123456789", msg.Recipient)
	assert.Contains(t, msg.Text, "Company/Site: Acme Steel")
	assert.Contains(t, msg.Text, "Worker: Ali (ID W001)")
	assert.Contains(t, msg.Text, "Issue: Helmet Missing, Gloves Missing")
	assert.Contains(t, msg.Text, "Zone: Welding Bay (High Risk Area)")
	assert.Contains(t, msg.Text, "Risk Level: High")
	assert.Contains(t, msg.Text, "Time: 2026-03-02 14:30")
	assert.False(t, msg.Emphasized)
}

func TestEmphasizedMessageStarsEveryLine(t *testing.T) {
	c := Composer{SiteName: "Acme Steel", Multiple: 3}
	msg := c.Compose(strikeWithSequence(3), testViolation(), testWorker, testZone)

	assert.True(t, msg.Emphasized)
	for _, line := range strings.Split(msg.Text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		assert.True(t, strings.HasPrefix(line, "*") && strings.HasSuffix(line, "*"),
			"line not emphasized: %q", line)
	}
	assert.Contains(t, msg.Text, "3rd recorded safety violation")
}

func TestOrdinal(t *testing.T) {
	tests := map[int]string{
		1: "1st", 2: "2nd", 3: "3rd", 4: "4th",
		11: "11th", 12: "12th", 13: "13th",
		21: "21st", 22: "22nd", 23: "23rd", 101: "101st", 111: "111th",
	}
	for n, want := range tests {
		assert.Equal(t, want, ordinal(n))
	}
}

func TestComposeDefaultsMultiple(t *testing.T) {
	c := Composer{SiteName: "Acme Steel"} // zero Multiple falls back to 3
	msg := c.Compose(strikeWithSequence(6), testViolation(), testWorker, testZone)
	assert.True(t, msg.Emphasized)
}

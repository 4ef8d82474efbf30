// Package escalation builds the outbound disciplinary notice for a strike.
// Composing is pure; delivery belongs to the messaging collaborator.
package escalation

import (
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/safesite-vision/ppe-sentinel/internal/models"
)

// DefaultMultiple is the strike interval at which notices are emphasized.
const DefaultMultiple = 3

// Composer parameterizes message content that does not vary per strike.
type Composer struct {
	SiteName string
	// Multiple marks every Multiple-th strike (3rd, 6th, ...) as emphasized.
	Multiple int
}

// Compose builds the notice for a strike. Emphasized exactly when the strike
// sequence is a multiple of the configured interval; emphasized messages
// have every line star-wrapped, which renders bold in chat clients.
func (c Composer) Compose(strike models.Strike, v models.Violation, worker models.Worker, zone models.Zone) models.EscalationMessage {
	multiple := c.Multiple
	if multiple <= 0 {
		multiple = DefaultMultiple
	}

	emphasized := strike.Sequence%multiple == 0

	var header, strikeLine, closing string
	switch {
	case strike.Sequence <= 1:
		header = "SAFETY NOTICE"
		strikeLine = "You were just recorded without full PPE. Please correct this immediately."
		closing = "Please wear your safety helmet, vest, gloves and boots at all times. This is a safety requirement."
	case strike.Sequence == 2:
		header = "SAFETY REMINDER"
		strikeLine = "This is your 2nd recorded safety violation. You must wear full PPE immediately."
		closing = "Continued non-compliance will lead to disciplinary action."
	default:
		header = "SAFETY WARNING"
		strikeLine = fmt.Sprintf("This is your %s recorded safety violation. This is a formal warning.", ordinal(strike.Sequence))
		closing = "Further violations may result in removal from site. Wear full PPE now. Please contact your HR/Supervisor."
	}

	issue := strings.Join(lo.Map(v.Missing, func(c models.PPEClass, _ int) string {
		return c.Label()
	}), ", ")

	lines := []string{
		fmt.Sprintf("⚠ %s ⚠", header),
		fmt.Sprintf("Company/Site: %s", c.SiteName),
		workerLine(worker),
	}
	if issue != "" {
		lines = append(lines, fmt.Sprintf("Issue: %s", issue))
	}
	lines = append(lines,
		fmt.Sprintf("Zone: %s (%s)", zoneName(zone), riskLabel(v.Risk)),
		fmt.Sprintf("Risk Level: %s", riskLevelLine(v.Risk)),
		fmt.Sprintf("Time: %s", v.OccurredAt.Format("2006-01-02 15:04")),
		strikeLine,
		"",
		closing,
	)

	text := strings.Join(lo.Filter(lines, func(l string, _ int) bool {
		return strings.TrimSpace(l) != ""
	}), "\n")

	if emphasized {
		text = starify(text)
	}

	return models.EscalationMessage{
		Recipient:  worker.Phone,
		Text:       text,
		Emphasized: emphasized,
	}
}

func workerLine(w models.Worker) string {
	if w.Name != "" && w.ID != "" {
		return fmt.Sprintf("Worker: %s (ID %s)", w.Name, w.ID)
	}
	if w.Name != "" {
		return fmt.Sprintf("Worker: %s", w.Name)
	}
	return fmt.Sprintf("Worker: %s", w.ID)
}

func zoneName(z models.Zone) string {
	if z.Name != "" {
		return z.Name
	}
	if z.ID != "" {
		return z.ID
	}
	return "N/A"
}

func riskLabel(r models.RiskLevel) string {
	switch r {
	case models.RiskHigh:
		return "High Risk Area"
	case models.RiskMedium:
		return "Medium Risk Area"
	case models.RiskLow:
		return "Low Risk Area"
	default:
		return "Unknown Risk"
	}
}

func riskLevelLine(r models.RiskLevel) string {
	switch r {
	case models.RiskHigh, models.RiskMedium, models.RiskLow:
		return strings.ToUpper(string(r[:1])) + string(r[1:])
	default:
		return "N/A"
	}
}

// ordinal renders 1 -> 1st, 2 -> 2nd, 3 -> 3rd, 11..13 -> th.
func ordinal(n int) string {
	s := fmt.Sprint(n)
	if m := n % 100; m >= 11 && m <= 13 {
		return s + "th"
	}
	switch n % 10 {
	case 1:
		return s + "st"
	case 2:
		return s + "nd"
	case 3:
		return s + "rd"
	}
	return s + "th"
}

// starify wraps every non-empty line in *...*.
func starify(text string) string {
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			lines[i] = "*" + l + "*"
		}
	}
	return strings.Join(lines, "\n")
}

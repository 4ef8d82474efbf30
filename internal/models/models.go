package models

import "time"

// PPEClass is one item of personal protective equipment a zone can mandate.
type PPEClass string

const (
	PPEHelmet PPEClass = "helmet"
	PPEVest   PPEClass = "vest"
	PPEGloves PPEClass = "gloves"
	PPEBoots  PPEClass = "boots"
)

// Label returns the human-readable "X Missing" form used in notices.
func (c PPEClass) Label() string {
	switch c {
	case PPEHelmet:
		return "Helmet Missing"
	case PPEVest:
		return "Vest Missing"
	case PPEGloves:
		return "Gloves Missing"
	case PPEBoots:
		return "Boots Missing"
	default:
		return string(c) + " Missing"
	}
}

// RiskLevel classifies a zone's hazard severity.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Weight returns a numeric weight so risk levels can be compared.
func (r RiskLevel) Weight() int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// CameraState is the liveness state derived from heartbeats.
type CameraState string

const (
	CameraOnline  CameraState = "online"
	CameraOffline CameraState = "offline"
)

// Zone is an area of the site with a fixed risk level.
type Zone struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Risk RiskLevel `json:"risk_level"`
}

// Camera belongs to exactly one zone. State and LastHeartbeat are owned by
// the heartbeat monitor.
type Camera struct {
	ID            string      `json:"id"`
	ZoneID        string      `json:"zone_id"`
	Endpoint      string      `json:"endpoint"`
	State         CameraState `json:"state"`
	LastHeartbeat time.Time   `json:"last_heartbeat"`
}

// RawDetection is one detected object as emitted by the external detector.
type RawDetection struct {
	Class string    `json:"class"`
	Score float64   `json:"score"`
	Box   []float64 `json:"box"` // [x1, y1, x2, y2]
}

// RawFrame is the unprocessed per-frame payload from the detection
// collaborator. Image carries JPEG bytes used for evidence snapshots and may
// be empty.
type RawFrame struct {
	CameraID   string         `json:"camera_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Detections []RawDetection `json:"detections"`
	Image      []byte         `json:"image,omitempty"`
}

// FrameReading is the canonical per-frame compliance reading, restricted to
// the PPE classes the frame's zone mandates. Never persisted.
type FrameReading struct {
	CameraID  string
	Timestamp time.Time
	Present   []PPEClass
	Missing   []PPEClass
	Scores    map[PPEClass]float64
}

// Compliant reports whether no mandatory class is missing.
func (f FrameReading) Compliant() bool {
	return len(f.Missing) == 0
}

// Heartbeat is a liveness ping from the heartbeat collaborator.
type Heartbeat struct {
	CameraID  string    `json:"camera_id"`
	Timestamp time.Time `json:"timestamp"`
}

// CameraStatusChange is emitted on every online/offline transition.
type CameraStatusChange struct {
	CameraID string      `json:"camera_id"`
	State    CameraState `json:"state"`
	At       time.Time   `json:"at"`
}

// ViolationStatus tracks a violation through offender binding.
type ViolationStatus string

const (
	ViolationPendingOffender ViolationStatus = "pending_offender"
	ViolationStruck          ViolationStatus = "struck"
)

// Violation is a confirmed non-compliance incident. The missing set and risk
// level are fixed at confirmation time.
type Violation struct {
	ID          string          `json:"id"`
	ZoneID      string          `json:"zone_id"`
	CameraID    string          `json:"camera_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Missing     []PPEClass      `json:"missing"`
	Risk        RiskLevel       `json:"risk_level"`
	SnapshotRef string          `json:"snapshot_ref,omitempty"` // empty means capture is still pending
	WorkerID    string          `json:"worker_id,omitempty"`
	Status      ViolationStatus `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Worker is a registered site worker. StrikeCount equals the number of
// strike records referencing the worker.
type Worker struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Active      bool   `json:"active"`
	StrikeCount int    `json:"strike_count"`
}

// Strike is one disciplinary record, bound one-to-one to a violation.
// Sequence is the worker's strike count right after this strike.
type Strike struct {
	ID          string    `json:"id"`
	WorkerID    string    `json:"worker_id"`
	ViolationID string    `json:"violation_id"`
	Sequence    int       `json:"sequence"`
	CreatedAt   time.Time `json:"created_at"`
}

// EscalationMessage is the outbound notice produced for a strike. Delivery
// is the messaging collaborator's job.
type EscalationMessage struct {
	Recipient  string `json:"recipient"`
	Text       string `json:"text"`
	Emphasized bool   `json:"emphasized"`
}

// EscalationEvent is the payload published to the dispatch collaborator.
type EscalationEvent struct {
	StrikeID    string            `json:"strike_id"`
	WorkerID    string            `json:"worker_id"`
	ViolationID string            `json:"violation_id"`
	Sequence    int               `json:"sequence"`
	Message     EscalationMessage `json:"message"`
}

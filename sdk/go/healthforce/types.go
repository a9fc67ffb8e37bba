package healthforce

import (
	"encoding/json"
	"fmt"
)

// Run statuses reported by the backend.
const (
	RunPending   = "pending"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Health is the body of GET /health.
type Health struct {
	Status    string            `json:"status"`
	Service   string            `json:"service,omitempty"`
	Version   string            `json:"version,omitempty"`
	Agents    map[string]string `json:"agents,omitempty"`
	Timestamp string            `json:"timestamp"`
}

// SurgeRun acknowledges a started run.
type SurgeRun struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// SurgeStatus is the body of GET /surge/status/{runId}.
type SurgeStatus struct {
	RunID    string         `json:"run_id"`
	Status   string         `json:"status"`
	Progress *string        `json:"progress"`
	Result   map[string]any `json:"result"`
	Error    *string        `json:"error"`
}

// Done reports whether the run reached a terminal status.
func (s SurgeStatus) Done() bool {
	return s.Status == RunCompleted || s.Status == RunFailed
}

// SurgeRunSummary is one entry of SurgeList.
type SurgeRunSummary struct {
	RunID        string `json:"run_id"`
	Status       string `json:"status"`
	CreatedAt    string `json:"created_at"`
	LocationZone string `json:"location_zone"`
}

// SurgeList is the body of GET /surge/list.
type SurgeList struct {
	Runs []SurgeRunSummary `json:"runs"`
}

// Approval is the body of POST /surge/approve.
type Approval struct {
	RunID     string `json:"run_id"`
	Approved  bool   `json:"approved"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// DemoRequest is the demo form payload accepted by POST /demo/book.
type DemoRequest struct {
	FirstName        string   `json:"first_name"`
	LastName         string   `json:"last_name"`
	Email            string   `json:"email"`
	OrganizationType string   `json:"organization_type"`
	InterestAreas    []string `json:"interest_areas"`
}

// DemoBooking confirms a booked demo.
type DemoBooking struct {
	Success      bool     `json:"success"`
	DemoID       string   `json:"demo_id"`
	Message      string   `json:"message"`
	Email        string   `json:"email"`
	Organization string   `json:"organization"`
	Interests    []string `json:"interests"`
}

// LoginResult is the body of POST /auth/login.
type LoginResult struct {
	Success bool    `json:"success"`
	Token   *string `json:"token"`
	Role    string  `json:"role"`
	Message string  `json:"message"`
}

// Alert is a role-specific notice on the dashboard.
type Alert struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Dashboard is the body of GET /dashboard/{role}.
type Dashboard struct {
	Alerts []Alert        `json:"alerts"`
	Stats  map[string]any `json:"stats"`
}

// InventoryItem is one stocked medicine.
type InventoryItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Stock    int    `json:"stock"`
	MinLevel int    `json:"min_level"`
}

// Roster counts on-call staff.
type Roster struct {
	DoctorsOnCall int `json:"doctors_on_call"`
	NursesOnCall  int `json:"nurses_on_call"`
}

// Inventory is the body of GET /inventory/{zone}.
type Inventory struct {
	Zone      string          `json:"zone"`
	Inventory []InventoryItem `json:"inventory"`
	Roster    Roster          `json:"roster"`
	Timestamp string          `json:"timestamp"`
}

// SurgeForecast predicts patient load for a zone.
type SurgeForecast struct {
	Zone              string         `json:"zone"`
	PredictedPatients int            `json:"predicted_patients"`
	SeverityBreakdown map[string]int `json:"severity_breakdown"`
	Confidence        float64        `json:"confidence"`
	Reasoning         string         `json:"reasoning"`
	Timestamp         string         `json:"timestamp"`
}

// Forecast is the body of GET /forecast/{zone}.
type Forecast struct {
	Zone     string         `json:"zone"`
	Forecast *SurgeForecast `json:"forecast"`
	Source   string         `json:"source"`
}

// Decode converts a result returned by a client operation into out, which
// should be a pointer to one of the types above (or any JSON target).
func Decode(result any, out any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

package api

import (
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"HealthForce-Goa/internal/navigation"
	"HealthForce-Goa/internal/surge"
	"HealthForce-Goa/pkg/logger"
	"HealthForce-Goa/sdk/go/healthforce"
)

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthforce.Health{
		Status:    "healthy",
		Service:   serviceName,
		Version:   serviceVersion,
		Timestamp: s.timestamp(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	agents := make(map[string]string)
	for _, name := range surge.Agents() {
		agents[name] = "ready"
	}
	writeJSON(w, http.StatusOK, healthforce.Health{
		Status:    "operational",
		Agents:    agents,
		Timestamp: s.timestamp(),
	})
}

type surgeRunRequest struct {
	LocationZone *string `json:"location_zone"`
	CurrentTime  *string `json:"current_time"`
}

func (s *Server) handleRunSurge(w http.ResponseWriter, r *http.Request) {
	var req surgeRunRequest
	if !decodeBody(w, r, &req) {
		return
	}
	zone := surge.DefaultZone
	if req.LocationZone != nil {
		zone = *req.LocationZone
	}
	var currentTime string
	if req.CurrentTime != nil {
		currentTime = *req.CurrentTime
	}

	run, err := s.surge.Submit(r.Context(), zone, currentTime)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, healthforce.SurgeRun{
		RunID:   run.ID,
		Status:  string(run.Status),
		Message: fmt.Sprintf("Surge analysis started for %s", run.LocationZone),
	})
}

func (s *Server) handleSurgeStatus(w http.ResponseWriter, r *http.Request) {
	run, err := s.surge.Get(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, err)
		return
	}
	status := healthforce.SurgeStatus{
		RunID:  run.ID,
		Status: string(run.Status),
		Result: run.Result,
	}
	if run.Progress != "" {
		status.Progress = &run.Progress
	}
	if run.LastError != "" {
		status.Error = &run.LastError
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListSurgeRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.surge.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	list := healthforce.SurgeList{Runs: make([]healthforce.SurgeRunSummary, 0, len(runs))}
	for _, run := range runs {
		list.Runs = append(list.Runs, healthforce.SurgeRunSummary{
			RunID:        run.ID,
			Status:       string(run.Status),
			CreatedAt:    time.UnixMilli(run.CreatedAt).Format(surge.TimestampLayout),
			LocationZone: run.LocationZone,
		})
	}
	writeJSON(w, http.StatusOK, list)
}

type approveRequest struct {
	RunID        *string `json:"run_id"`
	Approved     *bool   `json:"approved"`
	ModifiedPlan *string `json:"modified_plan"`
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if missing := missingFields(map[string]bool{"run_id": req.RunID == nil, "approved": req.Approved == nil}); missing != "" {
		writeDetail(w, http.StatusUnprocessableEntity, missing)
		return
	}

	approval, err := s.surge.Approve(r.Context(), *req.RunID, *req.Approved, req.ModifiedPlan)
	if err != nil {
		writeError(w, err)
		return
	}
	message := "Action rejected"
	if approval.Approved {
		message = "Action approved and payments initiated"
	}
	writeJSON(w, http.StatusOK, healthforce.Approval{
		RunID:     approval.RunID,
		Approved:  approval.Approved,
		Message:   message,
		Timestamp: time.UnixMilli(approval.DecidedAt).Format(surge.TimestampLayout),
	})
}

type demoRequest struct {
	FirstName        *string  `json:"first_name"`
	LastName         *string  `json:"last_name"`
	Email            *string  `json:"email"`
	OrganizationType *string  `json:"organization_type"`
	InterestAreas    []string `json:"interest_areas"`
}

func (s *Server) handleBookDemo(w http.ResponseWriter, r *http.Request) {
	var req demoRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if missing := missingFields(map[string]bool{
		"first_name":        req.FirstName == nil,
		"last_name":         req.LastName == nil,
		"email":             req.Email == nil,
		"organization_type": req.OrganizationType == nil,
	}); missing != "" {
		writeDetail(w, http.StatusUnprocessableEntity, missing)
		return
	}
	interests := req.InterestAreas
	if interests == nil {
		interests = []string{}
	}

	booking := healthforce.DemoBooking{
		Success:      true,
		DemoID:       surge.NewDemoID(),
		Message:      fmt.Sprintf("Demo scheduled successfully for %s %s", *req.FirstName, *req.LastName),
		Email:        *req.Email,
		Organization: *req.OrganizationType,
		Interests:    interests,
	}
	logger.Audit().Info("预约演示",
		slog.String("demo_id", booking.DemoID),
		slog.String("organization", booking.Organization),
		slog.Int("interests", len(interests)),
	)
	writeJSON(w, http.StatusOK, booking)
}

type loginRequest struct {
	Role       *string `json:"role"`
	Identifier *string `json:"identifier"`
	Password   *string `json:"password"`
}

// handleLogin 是演示登录，接受任意凭据。
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if missing := missingFields(map[string]bool{
		"role":       req.Role == nil,
		"identifier": req.Identifier == nil,
		"password":   req.Password == nil,
	}); missing != "" {
		writeDetail(w, http.StatusUnprocessableEntity, missing)
		return
	}
	token := "TOKEN-" + strings.ReplaceAll(uuid.NewString(), "-", "")
	writeJSON(w, http.StatusOK, healthforce.LoginResult{
		Success: true,
		Token:   &token,
		Role:    *req.Role,
		Message: fmt.Sprintf("Successfully logged in as %s", *req.Role),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	role := navigation.Role(chi.URLParam(r, "role"))
	if !role.Valid() {
		writeDetail(w, http.StatusBadRequest, "Invalid role")
		return
	}
	writeJSON(w, http.StatusOK, dashboardFor(role, s.timestamp()))
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	zone := chi.URLParam(r, "zone")
	snapshot := surge.InventorySnapshot(zone)
	items := make([]healthforce.InventoryItem, 0, len(snapshot))
	for _, item := range snapshot {
		items = append(items, healthforce.InventoryItem(item))
	}
	writeJSON(w, http.StatusOK, healthforce.Inventory{
		Zone:      zone,
		Inventory: items,
		Roster:    healthforce.Roster(surge.RosterFor(zone)),
		Timestamp: s.timestamp(),
	})
}

type forecastResponse struct {
	Zone     string `json:"zone"`
	Forecast any    `json:"forecast"`
	Source   string `json:"source"`
}

func (s *Server) handleForecast(w http.ResponseWriter, r *http.Request) {
	zone := chi.URLParam(r, "zone")
	run, err := s.surge.LatestCompleted(r.Context(), zone)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, forecastResponse{Zone: zone, Forecast: run.Result.Forecast(), Source: "live_analysis"})
	case stdErrors.Is(err, surge.ErrRunNotFound):
		writeJSON(w, http.StatusOK, forecastResponse{
			Zone:     zone,
			Forecast: surge.SimulatedForecast(zone, s.now()),
			Source:   "simulated",
		})
	default:
		writeError(w, err)
	}
}

// missingFields 返回按字段名排序的缺失字段描述，全部存在时返回空串。
func missingFields(fields map[string]bool) string {
	var missing []string
	for name, absent := range fields {
		if absent {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return ""
	}
	sort.Strings(missing)
	return "缺少必填字段: " + strings.Join(missing, ", ")
}

package healthforce

import (
	"context"
	"net/http"
	"net/url"
)

// DefaultLocationZone is sent by RunSurge when no zone is given.
const DefaultLocationZone = "Mumbai-West"

// Operation names, used when logging failures and by the CLI.
const (
	OpHealthCheck      = "healthCheck"
	OpRunSurge         = "runSurge"
	OpGetSurgeStatus   = "getSurgeStatus"
	OpListSurgeRuns    = "listSurgeRuns"
	OpApproveAction    = "approveAction"
	OpBookDemo         = "bookDemo"
	OpLogin            = "login"
	OpGetDashboardData = "getDashboardData"
	OpGetInventory     = "getInventory"
	OpGetForecast      = "getForecast"
)

// HealthCheck reports backend and agent readiness.
func (c *Client) HealthCheck(ctx context.Context) (any, error) {
	return c.Do(ctx, OpHealthCheck, Request{Method: http.MethodGet, Endpoint: "/health"})
}

type surgeRunBody struct {
	LocationZone string  `json:"location_zone"`
	CurrentTime  *string `json:"current_time"`
}

// SurgeOption adjusts the body of RunSurge.
type SurgeOption func(*surgeRunBody)

// WithLocationZone selects the zone to analyse.
func WithLocationZone(zone string) SurgeOption {
	return func(b *surgeRunBody) {
		b.LocationZone = zone
	}
}

// WithCurrentTime pins the analysis clock to an ISO-8601 timestamp. Without it
// the backend uses its own clock.
func WithCurrentTime(ts string) SurgeOption {
	return func(b *surgeRunBody) {
		b.CurrentTime = &ts
	}
}

// RunSurge starts a surge analysis run.
func (c *Client) RunSurge(ctx context.Context, opts ...SurgeOption) (any, error) {
	body := surgeRunBody{LocationZone: DefaultLocationZone}
	for _, opt := range opts {
		if opt != nil {
			opt(&body)
		}
	}
	return c.Do(ctx, OpRunSurge, Request{Method: http.MethodPost, Endpoint: "/surge/run", Body: body})
}

// GetSurgeStatus fetches the progress of one run.
func (c *Client) GetSurgeStatus(ctx context.Context, runID string) (any, error) {
	return c.Do(ctx, OpGetSurgeStatus, Request{Method: http.MethodGet, Endpoint: "/surge/status/" + url.PathEscape(runID)})
}

// ListSurgeRuns lists every run the backend knows about.
func (c *Client) ListSurgeRuns(ctx context.Context) (any, error) {
	return c.Do(ctx, OpListSurgeRuns, Request{Method: http.MethodGet, Endpoint: "/surge/list"})
}

type approvalBody struct {
	RunID        string  `json:"run_id"`
	Approved     bool    `json:"approved"`
	ModifiedPlan *string `json:"modified_plan"`
}

// ApprovalOption adjusts the body of ApproveAction.
type ApprovalOption func(*approvalBody)

// WithModifiedPlan attaches an operator-edited plan to the decision.
func WithModifiedPlan(plan string) ApprovalOption {
	return func(b *approvalBody) {
		b.ModifiedPlan = &plan
	}
}

// ApproveAction approves or rejects the orchestrator's recommendation for a run.
func (c *Client) ApproveAction(ctx context.Context, runID string, approved bool, opts ...ApprovalOption) (any, error) {
	body := approvalBody{RunID: runID, Approved: approved}
	for _, opt := range opts {
		if opt != nil {
			opt(&body)
		}
	}
	return c.Do(ctx, OpApproveAction, Request{Method: http.MethodPost, Endpoint: "/surge/approve", Body: body})
}

// BookDemo submits the demo form. demo is sent as-is; DemoRequest matches
// what the backend expects.
func (c *Client) BookDemo(ctx context.Context, demo any) (any, error) {
	return c.Do(ctx, OpBookDemo, Request{Method: http.MethodPost, Endpoint: "/demo/book", Body: demo})
}

type loginBody struct {
	Role       string `json:"role"`
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// Login signs in with a role-specific identifier.
func (c *Client) Login(ctx context.Context, role, identifier, password string) (any, error) {
	return c.Do(ctx, OpLogin, Request{
		Method:   http.MethodPost,
		Endpoint: "/auth/login",
		Body:     loginBody{Role: role, Identifier: identifier, Password: password},
	})
}

// GetDashboardData fetches the alerts and stats shown to a role.
func (c *Client) GetDashboardData(ctx context.Context, role string) (any, error) {
	return c.Do(ctx, OpGetDashboardData, Request{Method: http.MethodGet, Endpoint: "/dashboard/" + url.PathEscape(role)})
}

// GetInventory fetches the inventory and staff roster of a zone.
func (c *Client) GetInventory(ctx context.Context, zone string) (any, error) {
	return c.Do(ctx, OpGetInventory, Request{Method: http.MethodGet, Endpoint: "/inventory/" + url.PathEscape(zone)})
}

// GetForecast fetches the latest forecast for a zone.
func (c *Client) GetForecast(ctx context.Context, zone string) (any, error) {
	return c.Do(ctx, OpGetForecast, Request{Method: http.MethodGet, Endpoint: "/forecast/" + url.PathEscape(zone)})
}

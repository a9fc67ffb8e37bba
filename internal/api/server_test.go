package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	xerrors "HealthForce-Goa/internal/errors"
	"HealthForce-Goa/internal/observability/metrics"
	"HealthForce-Goa/internal/surge"
	"HealthForce-Goa/pkg/logger"
	"HealthForce-Goa/sdk/go/healthforce"
)

type testBackend struct {
	server  *httptest.Server
	service *surge.Service
	client  *healthforce.Client
}

func newTestBackend(t *testing.T, opts ...Option) *testBackend {
	t.Helper()
	logger.Discard()

	store := surge.NewMemoryStore()
	queue := surge.NewMemoryQueue(16)
	service := surge.NewService(store, queue, 2)
	processor := surge.NewProcessor(surge.NewSimulatedPipeline(0), store, queue, queue, surge.WithWorkerCount(2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = processor.Start(ctx)
	}()

	srv := httptest.NewServer(NewServer(service, opts...).Handler())
	client, err := healthforce.NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
		_ = service.Close()
	})
	return &testBackend{server: srv, service: service, client: client}
}

func (b *testBackend) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, b.server.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := b.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp, payload
}

func (b *testBackend) runSurge(t *testing.T, zone string) string {
	t.Helper()
	raw, err := b.client.RunSurge(context.Background(), healthforce.WithLocationZone(zone))
	if err != nil {
		t.Fatalf("run surge: %v", err)
	}
	var ack healthforce.SurgeRun
	if err := healthforce.Decode(raw, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	return ack.RunID
}

func (b *testBackend) waitCompleted(t *testing.T, runID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run, err := b.service.WaitUntilDone(ctx, runID, 5*time.Millisecond)
	if err != nil {
		t.Fatalf("wait %s: %v", runID, err)
	}
	if run.Status != surge.StatusCompleted {
		t.Fatalf("run %s ended as %s: %s", runID, run.Status, run.LastError)
	}
}

func TestRootAndHealth(t *testing.T) {
	b := newTestBackend(t)

	resp, root := b.do(t, http.MethodGet, "/", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("root status = %d", resp.StatusCode)
	}
	if root["status"] != "healthy" || root["service"] != serviceName || root["version"] != serviceVersion {
		t.Fatalf("unexpected root body: %v", root)
	}

	raw, err := b.client.HealthCheck(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	var health healthforce.Health
	if err := healthforce.Decode(raw, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "operational" {
		t.Fatalf("health status = %q", health.Status)
	}
	if len(health.Agents) != len(surge.Agents()) {
		t.Fatalf("agents = %v", health.Agents)
	}
	for _, name := range surge.Agents() {
		if health.Agents[name] != "ready" {
			t.Fatalf("agent %s = %q", name, health.Agents[name])
		}
	}
	if _, err := time.Parse(surge.TimestampLayout, health.Timestamp); err != nil {
		t.Fatalf("timestamp %q: %v", health.Timestamp, err)
	}
}

func TestSurgeRunLifecycle(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	raw, err := b.client.RunSurge(ctx, healthforce.WithLocationZone("Panaji"))
	if err != nil {
		t.Fatalf("run surge: %v", err)
	}
	var ack healthforce.SurgeRun
	if err := healthforce.Decode(raw, &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !strings.HasPrefix(ack.RunID, "SURGE-") || ack.Status != healthforce.RunPending {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if ack.Message != "Surge analysis started for Panaji" {
		t.Fatalf("message = %q", ack.Message)
	}
	b.waitCompleted(t, ack.RunID)

	raw, err = b.client.GetSurgeStatus(ctx, ack.RunID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var status healthforce.SurgeStatus
	if err := healthforce.Decode(raw, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Done() || status.Status != healthforce.RunCompleted {
		t.Fatalf("status = %+v", status)
	}
	if status.Error != nil {
		t.Fatalf("completed run carries error %q", *status.Error)
	}
	forecast, _ := status.Result["forecast"].(map[string]any)
	if forecast["zone"] != "Panaji" {
		t.Fatalf("forecast = %v", status.Result["forecast"])
	}

	raw, err = b.client.ListSurgeRuns(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var list healthforce.SurgeList
	if err := healthforce.Decode(raw, &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list.Runs) != 1 || list.Runs[0].RunID != ack.RunID || list.Runs[0].LocationZone != "Panaji" {
		t.Fatalf("list = %+v", list)
	}
	if _, err := time.Parse(surge.TimestampLayout, list.Runs[0].CreatedAt); err != nil {
		t.Fatalf("created_at %q: %v", list.Runs[0].CreatedAt, err)
	}
}

func TestRunSurgeDefaultsZone(t *testing.T) {
	b := newTestBackend(t)

	resp, body := b.do(t, http.MethodPost, "/api/surge/run", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%v", resp.StatusCode, body)
	}
	if body["message"] != "Surge analysis started for Mumbai-West" {
		t.Fatalf("message = %v", body["message"])
	}
}

func TestRunSurgeRejectsBadBody(t *testing.T) {
	b := newTestBackend(t)

	resp, body := b.do(t, http.MethodPost, "/api/surge/run", `{"location_zone": 7}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if _, ok := body["detail"].(string); !ok {
		t.Fatalf("detail = %v", body["detail"])
	}

	resp, body = b.do(t, http.MethodPost, "/api/surge/run", `{"location_zone": "`+strings.Repeat("z", 200)+`"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if detail, _ := body["detail"].(string); strings.Contains(detail, "[") {
		t.Fatalf("detail leaks error code: %q", detail)
	}
}

func TestSurgeStatusNotFound(t *testing.T) {
	b := newTestBackend(t)

	_, err := b.client.GetSurgeStatus(context.Background(), "SURGE-MISSING")
	apiErr, ok := healthforce.AsError(err)
	if !ok {
		t.Fatalf("expected client error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound || apiErr.Message != "Run not found" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}

func TestApproveAction(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	_, err := b.client.ApproveAction(ctx, "SURGE-MISSING", true)
	if apiErr, ok := healthforce.AsError(err); !ok || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("missing run: %v", err)
	}

	runID := b.runSurge(t, "Margao")
	b.waitCompleted(t, runID)

	raw, err := b.client.ApproveAction(ctx, runID, true, healthforce.WithModifiedPlan("halve the nurse order"))
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	var approval healthforce.Approval
	if err := healthforce.Decode(raw, &approval); err != nil {
		t.Fatalf("decode approval: %v", err)
	}
	if approval.RunID != runID || !approval.Approved || approval.Message != "Action approved and payments initiated" {
		t.Fatalf("approval = %+v", approval)
	}

	raw, err = b.client.ApproveAction(ctx, runID, false)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := healthforce.Decode(raw, &approval); err != nil {
		t.Fatalf("decode rejection: %v", err)
	}
	if approval.Approved || approval.Message != "Action rejected" {
		t.Fatalf("rejection = %+v", approval)
	}
}

func TestApproveRequiresCompletedRun(t *testing.T) {
	logger.Discard()
	store := surge.NewMemoryStore()
	if err := store.Create(context.Background(), &surge.Run{ID: "SURGE-PENDING", LocationZone: "Vasco", Status: surge.StatusPending}); err != nil {
		t.Fatalf("create: %v", err)
	}
	// 没有处理器，运行停留在 pending。
	srv := httptest.NewServer(NewServer(surge.NewService(store, surge.NewMemoryQueue(1), 1)).Handler())
	defer srv.Close()

	resp, err := srv.Client().Post(srv.URL+"/api/surge/approve", "application/json", strings.NewReader(`{"run_id":"SURGE-PENDING","approved":true}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest || body["detail"] != "Run not yet completed" {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
}

func TestApproveRequiresFields(t *testing.T) {
	b := newTestBackend(t)

	resp, body := b.do(t, http.MethodPost, "/api/surge/approve", `{"approved": true}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if detail, _ := body["detail"].(string); !strings.Contains(detail, "run_id") {
		t.Fatalf("detail = %v", body["detail"])
	}
}

func TestBookDemo(t *testing.T) {
	b := newTestBackend(t)

	raw, err := b.client.BookDemo(context.Background(), healthforce.DemoRequest{
		FirstName:        "Asha",
		LastName:         "Naik",
		Email:            "asha@example.org",
		OrganizationType: "hospital",
	})
	if err != nil {
		t.Fatalf("book demo: %v", err)
	}
	var booking healthforce.DemoBooking
	if err := healthforce.Decode(raw, &booking); err != nil {
		t.Fatalf("decode booking: %v", err)
	}
	if !booking.Success || !strings.HasPrefix(booking.DemoID, "DEMO-") {
		t.Fatalf("booking = %+v", booking)
	}
	if booking.Message != "Demo scheduled successfully for Asha Naik" || booking.Organization != "hospital" {
		t.Fatalf("booking = %+v", booking)
	}
	if booking.Interests == nil || len(booking.Interests) != 0 {
		t.Fatalf("interests = %#v", booking.Interests)
	}

	resp, body := b.do(t, http.MethodPost, "/api/demo/book", `{"first_name":"Asha"}`)
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if detail, _ := body["detail"].(string); !strings.Contains(detail, "email, last_name, organization_type") {
		t.Fatalf("detail = %v", body["detail"])
	}
}

func TestLogin(t *testing.T) {
	b := newTestBackend(t)

	raw, err := b.client.Login(context.Background(), "pharmacy", "admin@healthforce.goa", "secret")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	var result healthforce.LoginResult
	if err := healthforce.Decode(raw, &result); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if !result.Success || result.Role != "pharmacy" || result.Message != "Successfully logged in as pharmacy" {
		t.Fatalf("login = %+v", result)
	}
	if result.Token == nil || len(*result.Token) != len("TOKEN-")+32 {
		t.Fatalf("token = %v", result.Token)
	}
}

func TestDashboard(t *testing.T) {
	b := newTestBackend(t)

	cases := map[string]string{
		"hospital": "critical",
		"pharmacy": "warning",
		"patient":  "advisory",
	}
	for role, alertType := range cases {
		raw, err := b.client.GetDashboardData(context.Background(), role)
		if err != nil {
			t.Fatalf("dashboard %s: %v", role, err)
		}
		var dash healthforce.Dashboard
		if err := healthforce.Decode(raw, &dash); err != nil {
			t.Fatalf("decode dashboard: %v", err)
		}
		if len(dash.Alerts) != 1 || dash.Alerts[0].Type != alertType || len(dash.Stats) == 0 {
			t.Fatalf("dashboard %s = %+v", role, dash)
		}
	}

	_, err := b.client.GetDashboardData(context.Background(), "admin")
	apiErr, ok := healthforce.AsError(err)
	if !ok || apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "Invalid role" {
		t.Fatalf("invalid role: %v", err)
	}
}

func TestInventory(t *testing.T) {
	b := newTestBackend(t)

	raw, err := b.client.GetInventory(context.Background(), "Panaji")
	if err != nil {
		t.Fatalf("inventory: %v", err)
	}
	var inv healthforce.Inventory
	if err := healthforce.Decode(raw, &inv); err != nil {
		t.Fatalf("decode inventory: %v", err)
	}
	if inv.Zone != "Panaji" || len(inv.Inventory) != 2 {
		t.Fatalf("inventory = %+v", inv)
	}
	if inv.Inventory[0].ID != "med_1" || inv.Inventory[0].Stock != 40 || inv.Inventory[0].MinLevel != 100 {
		t.Fatalf("first item = %+v", inv.Inventory[0])
	}
	if inv.Roster.DoctorsOnCall != 5 || inv.Roster.NursesOnCall != 12 {
		t.Fatalf("roster = %+v", inv.Roster)
	}
}

func TestForecastFallsBackToSimulation(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	raw, err := b.client.GetForecast(ctx, "Panaji")
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	var forecast healthforce.Forecast
	if err := healthforce.Decode(raw, &forecast); err != nil {
		t.Fatalf("decode forecast: %v", err)
	}
	if forecast.Source != "simulated" || forecast.Forecast == nil || forecast.Forecast.PredictedPatients != 420 {
		t.Fatalf("simulated forecast = %+v", forecast)
	}

	runID := b.runSurge(t, "Panaji")
	b.waitCompleted(t, runID)

	raw, err = b.client.GetForecast(ctx, "Panaji")
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if err := healthforce.Decode(raw, &forecast); err != nil {
		t.Fatalf("decode forecast: %v", err)
	}
	if forecast.Source != "live_analysis" || forecast.Forecast == nil || forecast.Forecast.Zone != "Panaji" {
		t.Fatalf("live forecast = %+v", forecast)
	}

	// 其他区域仍使用模拟数据。
	raw, err = b.client.GetForecast(ctx, "Margao")
	if err != nil {
		t.Fatalf("forecast: %v", err)
	}
	if err := healthforce.Decode(raw, &forecast); err != nil {
		t.Fatalf("decode forecast: %v", err)
	}
	if forecast.Source != "simulated" {
		t.Fatalf("other zone source = %q", forecast.Source)
	}
}

func TestUnknownRouteAndMethod(t *testing.T) {
	b := newTestBackend(t)

	resp, body := b.do(t, http.MethodGet, "/api/nope", "")
	if resp.StatusCode != http.StatusNotFound || body["detail"] != "Not Found" {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
	resp, body = b.do(t, http.MethodGet, "/api/surge/run", "")
	if resp.StatusCode != http.StatusMethodNotAllowed || body["detail"] != "Method Not Allowed" {
		t.Fatalf("status=%d body=%v", resp.StatusCode, body)
	}
}

func TestCORSPreflight(t *testing.T) {
	b := newTestBackend(t)

	req, _ := http.NewRequest(http.MethodOptions, b.server.URL+"/api/surge/run", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := b.server.Client().Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got == "" {
		t.Fatalf("missing allow-origin header, status %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rec := metrics.NewRecorder()
	b := newTestBackend(t, WithMetrics(rec, "/metrics"))

	if _, err := b.client.HealthCheck(context.Background()); err != nil {
		t.Fatalf("health: %v", err)
	}
	resp, err := b.server.Client().Get(b.server.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	buf := new(strings.Builder)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(buf.String(), `handler="/api/health"`) {
		t.Fatalf("metrics output missing health route:\n%s", buf.String())
	}
}

func TestShutdownContextRejectsRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	handler := withContext(ctx, http.NotFoundHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestWriteErrorMapping(t *testing.T) {
	logger.Discard()
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", surge.ErrRunNotFound, http.StatusNotFound},
		{"not completed", surge.ErrRunNotCompleted, http.StatusBadRequest},
		{"validation", xerrors.New(surge.CodeValidation, "location_zone 过长"), http.StatusUnprocessableEntity},
		{"publish", xerrors.Wrap(surge.CodePublish, errors.New("broker down"), "发布运行到队列失败"), http.StatusServiceUnavailable},
		{"conflict", surge.ErrRunConflict, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)
			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

package healthforce

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync"
	"testing"
)

type recordedCall struct {
	Method string
	Path   string
	Body   string
}

// echoServer answers every request with the JSON mapped to its path and
// records what it received.
func echoServer(t *testing.T, responses map[string]string) (*httptest.Server, func() []recordedCall) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []recordedCall
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, recordedCall{Method: r.Method, Path: r.URL.EscapedPath(), Body: string(body)})
		mu.Unlock()

		resp, ok := responses[r.URL.EscapedPath()]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Not Found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []recordedCall {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedCall(nil), calls...)
	}
}

func mustJSON(t *testing.T, raw string) any {
	t.Helper()
	var out any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("unmarshal %q: %v", raw, err)
	}
	return out
}

func TestOperationsRoundTrip(t *testing.T) {
	responses := map[string]string{
		"/api/health":                `{"status":"healthy","agents":{"sentinel":"ready"},"timestamp":"2024-01-01T00:00:00"}`,
		"/api/surge/run":             `{"run_id":"SURGE-1A2B3C4D","status":"pending","message":"Surge analysis started"}`,
		"/api/surge/status/SURGE-1":  `{"run_id":"SURGE-1","status":"running","progress":"Analyzing signals...","result":null,"error":null}`,
		"/api/surge/list":            `{"runs":[{"run_id":"SURGE-1","status":"completed","created_at":"2024-01-01T00:00:00","location_zone":"Mumbai-West"}]}`,
		"/api/surge/approve":         `{"run_id":"SURGE-1","approved":true,"message":"Action approved","timestamp":"2024-01-01T00:00:00"}`,
		"/api/demo/book":             `{"success":true,"demo_id":"DEMO-ABCDEF12","message":"ok","email":"a@b.c","organization":"Hospital","interests":["Surge"]}`,
		"/api/auth/login":            `{"success":true,"token":"TOKEN-abc","role":"hospital","message":"Login successful"}`,
		"/api/dashboard/pharmacy":    `{"alerts":[{"type":"warning","message":"low stock","timestamp":"t"}],"stats":{"low_stock":2}}`,
		"/api/inventory/North%20Goa": `{"zone":"North Goa","inventory":[],"roster":{"doctors_on_call":5,"nurses_on_call":12},"timestamp":"t"}`,
		"/api/forecast/Mumbai-West":  `{"zone":"Mumbai-West","forecast":{"predicted_patients":420},"source":"simulated"}`,
	}
	srv, calls := echoServer(t, responses)
	client := newTestClient(t, srv)
	ctx := context.Background()

	cases := []struct {
		name string
		path string
		call func() (any, error)
	}{
		{OpHealthCheck, "/api/health", func() (any, error) { return client.HealthCheck(ctx) }},
		{OpRunSurge, "/api/surge/run", func() (any, error) { return client.RunSurge(ctx) }},
		{OpGetSurgeStatus, "/api/surge/status/SURGE-1", func() (any, error) { return client.GetSurgeStatus(ctx, "SURGE-1") }},
		{OpListSurgeRuns, "/api/surge/list", func() (any, error) { return client.ListSurgeRuns(ctx) }},
		{OpApproveAction, "/api/surge/approve", func() (any, error) { return client.ApproveAction(ctx, "SURGE-1", true) }},
		{OpBookDemo, "/api/demo/book", func() (any, error) {
			return client.BookDemo(ctx, DemoRequest{FirstName: "A", Email: "a@b.c", OrganizationType: "Hospital"})
		}},
		{OpLogin, "/api/auth/login", func() (any, error) { return client.Login(ctx, "hospital", "admin@healthforce.goa", "pw") }},
		{OpGetDashboardData, "/api/dashboard/pharmacy", func() (any, error) { return client.GetDashboardData(ctx, "pharmacy") }},
		{OpGetInventory, "/api/inventory/North%20Goa", func() (any, error) { return client.GetInventory(ctx, "North Goa") }},
		{OpGetForecast, "/api/forecast/Mumbai-West", func() (any, error) { return client.GetForecast(ctx, "Mumbai-West") }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.call()
			if err != nil {
				t.Fatalf("%s: %v", tc.name, err)
			}
			want := mustJSON(t, responses[tc.path])
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("%s returned %#v, want %#v", tc.name, got, want)
			}
		})
	}

	methods := map[string]string{}
	for _, c := range calls() {
		methods[c.Path] = c.Method
	}
	for _, path := range []string{"/api/surge/run", "/api/surge/approve", "/api/demo/book", "/api/auth/login"} {
		if methods[path] != http.MethodPost {
			t.Fatalf("expected POST for %s, got %q", path, methods[path])
		}
	}
	if methods["/api/health"] != http.MethodGet {
		t.Fatalf("expected GET for health, got %q", methods["/api/health"])
	}
}

func TestRunSurgeBody(t *testing.T) {
	srv, calls := echoServer(t, map[string]string{"/api/surge/run": `{"run_id":"SURGE-1","status":"pending","message":"m"}`})
	client := newTestClient(t, srv)

	if _, err := client.RunSurge(context.Background()); err != nil {
		t.Fatalf("run surge: %v", err)
	}
	if _, err := client.RunSurge(context.Background(), WithLocationZone("Panaji"), WithCurrentTime("2024-06-01T10:00:00")); err != nil {
		t.Fatalf("run surge with options: %v", err)
	}

	got := calls()
	if len(got) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(got))
	}
	if got[0].Body != `{"location_zone":"Mumbai-West","current_time":null}` {
		t.Fatalf("unexpected default body: %s", got[0].Body)
	}
	if got[1].Body != `{"location_zone":"Panaji","current_time":"2024-06-01T10:00:00"}` {
		t.Fatalf("unexpected body: %s", got[1].Body)
	}
}

func TestApproveActionBody(t *testing.T) {
	srv, calls := echoServer(t, map[string]string{"/api/surge/approve": `{}`})
	client := newTestClient(t, srv)

	if _, err := client.ApproveAction(context.Background(), "SURGE-9", false, WithModifiedPlan("hold")); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if body := calls()[0].Body; body != `{"run_id":"SURGE-9","approved":false,"modified_plan":"hold"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestLoginBody(t *testing.T) {
	srv, calls := echoServer(t, map[string]string{"/api/auth/login": `{"success":true}`})
	client := newTestClient(t, srv)

	if _, err := client.Login(context.Background(), "patient", "+91 98765 43210", "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	call := calls()[0]
	if call.Method != http.MethodPost || call.Path != "/api/auth/login" {
		t.Fatalf("unexpected call: %+v", call)
	}
	if call.Body != `{"role":"patient","identifier":"+91 98765 43210","password":"secret"}` {
		t.Fatalf("unexpected body: %s", call.Body)
	}
}

func TestBookDemoSendsPayloadAsIs(t *testing.T) {
	srv, calls := echoServer(t, map[string]string{"/api/demo/book": `{"success":true}`})
	client := newTestClient(t, srv)

	payload := map[string]any{"first_name": "Asha", "extra": 1}
	if _, err := client.BookDemo(context.Background(), payload); err != nil {
		t.Fatalf("book demo: %v", err)
	}
	if body := calls()[0].Body; body != `{"extra":1,"first_name":"Asha"}` {
		t.Fatalf("unexpected body: %s", body)
	}
}

func TestConcurrentStatusCallsResolveIndependently(t *testing.T) {
	srv, _ := echoServer(t, map[string]string{
		"/api/surge/status/A": `{"run_id":"A","status":"running"}`,
		"/api/surge/status/B": `{"run_id":"B","status":"completed"}`,
	})
	client := newTestClient(t, srv)

	var wg sync.WaitGroup
	results := make([]any, 2)
	errs := make([]error, 2)
	for i, id := range []string{"A", "B"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			results[i], errs[i] = client.GetSurgeStatus(context.Background(), id)
		}(i, id)
	}
	wg.Wait()

	for i, id := range []string{"A", "B"} {
		if errs[i] != nil {
			t.Fatalf("status %s: %v", id, errs[i])
		}
		var status SurgeStatus
		if err := Decode(results[i], &status); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if status.RunID != id {
			t.Fatalf("expected run %s, got %s", id, status.RunID)
		}
	}
}

func TestPathParametersAreEscaped(t *testing.T) {
	srv, calls := echoServer(t, map[string]string{})
	client := newTestClient(t, srv)

	_, _ = client.GetDashboardData(context.Background(), "../admin")
	if path := calls()[0].Path; path != "/api/dashboard/..%2Fadmin" {
		t.Fatalf("unexpected path: %s", path)
	}
}

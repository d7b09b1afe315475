package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"github.com/wricardo/mcp-training/drivesim/api"
	"github.com/wricardo/mcp-training/drivesim/game/config"
	"github.com/wricardo/mcp-training/drivesim/game/engine"
	"github.com/wricardo/mcp-training/drivesim/game/service"
	"github.com/wricardo/mcp-training/drivesim/game/session"
)

func toolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if result == nil {
		t.Fatal("Expected result, got nil")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatal("Expected text content in result")
	}
	return text.Text
}

func testSnapshot() *engine.Snapshot {
	return &engine.Snapshot{
		State: engine.VehicleState{
			Velocity: mgl64.Vec2{0, 12.5},
			Position: mgl64.Vec3{10, 1.5, -4},
		},
		Clock:       time.Unix(0, 0).UTC(),
		Ticks:       42,
		Speed:       12.5,
		GroundFound: true,
	}
}

func TestNewClient(t *testing.T) {
	baseURL := "http://localhost:8080"
	client := NewClient(baseURL + "/")

	if client == nil {
		t.Fatal("Expected client to be created")
	}

	if client.baseURL != baseURL {
		t.Errorf("Expected baseURL %s, got %s", baseURL, client.baseURL)
	}

	if client.httpClient == nil {
		t.Error("Expected HTTP client to be initialized")
	}

	if client.GetMCPServer() == nil {
		t.Error("Expected MCP server to be initialized")
	}
}

func TestClient_apiCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON request, got %q", r.Header.Get("Content-Type"))
		}
		var req service.TickRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(service.TickResult{Ticks: req.Ticks, Controls: req.Keys})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	var result service.TickResult
	err := client.apiCall(context.Background(), "POST", "/api/sessions/x/tick", service.TickRequest{Keys: "wa", Ticks: 5}, &result)
	if err != nil {
		t.Fatalf("apiCall failed: %v", err)
	}

	if result.Ticks != 5 || result.Controls != "wa" {
		t.Errorf("Expected the request echoed back, got %+v", result)
	}
}

func TestClient_apiCall_Error(t *testing.T) {
	client := NewClient("http://invalid-url-that-does-not-exist:9999")

	err := client.apiCall(context.Background(), "GET", "/api", nil, nil)
	if err == nil {
		t.Error("Expected error for invalid URL")
	}
}

func TestClient_apiCall_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("Internal Server Error"))
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "GET", "/api", nil, nil)
	if err == nil {
		t.Fatal("Expected error for HTTP 500 response")
	}

	if !strings.Contains(err.Error(), "API error") {
		t.Errorf("Expected 'API error' in error message, got: %v", err)
	}
}

func TestClient_apiCall_ErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "session not found"})
	}))
	defer server.Close()

	client := NewClient(server.URL)

	err := client.apiCall(context.Background(), "GET", "/api/sessions/nope", nil, nil)
	if err == nil || err.Error() != "session not found" {
		t.Errorf("Expected the API error message, got: %v", err)
	}
}

func TestClient_createSession(t *testing.T) {
	var gotBody map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/api/sessions" {
			t.Errorf("Expected POST /api/sessions, got %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)

		resp := service.SessionInfo{
			ID:         "test-session-123",
			ConfigName: "drift",
			State:      testSnapshot(),
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewClient(server.URL)

	result, err := client.handleCreateSession(context.Background(), toolRequest("create_session", map[string]any{"config_id": "drift"}))
	if err != nil {
		t.Fatalf("createSession failed: %v", err)
	}

	text := resultText(t, result)
	if !strings.Contains(text, "test-session-123") {
		t.Errorf("Expected session ID in result, got: %s", text)
	}
	if !strings.Contains(text, "Course: drift") {
		t.Errorf("Expected course name in result, got: %s", text)
	}
	if gotBody["config_id"] != "drift" {
		t.Errorf("Expected config_id to be forwarded, got %v", gotBody)
	}
}

func TestClient_tick(t *testing.T) {
	var got service.TickRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/abc/tick" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(service.TickResult{
			Ticks:    got.Ticks,
			Controls: got.Keys,
			State:    testSnapshot(),
			Events:   []service.DriveEvent{{Type: service.EventBrakeMark, Message: "tire marks laid", Tick: 42}},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL)
	result, err := client.handleTick(context.Background(), toolRequest("tick", map[string]any{
		"session_id": "abc",
		"keys":       "wa",
		"elapsed_ms": 33.0,
		"ticks":      float64(4),
		"reset":      true,
		"intent":     "swing wide before the corner",
	}))
	if err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if got.Keys != "wa" || got.Ticks != 4 || got.ElapsedMS != 33 || !got.Reset {
		t.Errorf("Unexpected tick request %+v", got)
	}

	text := resultText(t, result)
	for _, want := range []string{"Ran 4 frame(s) holding wa", "brake_mark", "Speed: 12.50", "Frame: 42"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in result, got: %s", want, text)
		}
	}
}

func TestClient_driveRejectsBadSegments(t *testing.T) {
	client := NewClient("http://localhost:0")

	result, err := client.handleDrive(context.Background(), toolRequest("drive", map[string]any{
		"session_id": "abc",
		"segments":   []any{"w"},
	}))
	if err != nil {
		t.Fatalf("drive failed: %v", err)
	}
	if !result.IsError {
		t.Error("Expected a tool error for a non-object segment")
	}
}

func TestClient_handleDrivingInstructions(t *testing.T) {
	client := NewClient("http://localhost:8080")

	result, err := client.handleDrivingInstructions(context.Background(), toolRequest("driving_instructions", map[string]any{}))
	if err != nil {
		t.Fatalf("driving_instructions failed: %v", err)
	}

	text := resultText(t, result)
	for _, want := range []string{"CONTROLS", "200 marks", "600 frames"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in instructions", want)
		}
	}
}

func TestFormatSnapshot(t *testing.T) {
	text := formatSnapshot(testSnapshot())
	for _, want := range []string{"Position: (10.00, 1.50, -4.00)", "Speed: 12.50", "Heading: 0.0°", "Ground: in contact", "Tire marks: 0"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in %s", want, text)
		}
	}

	airborne := testSnapshot()
	airborne.GroundFound = false
	if !strings.Contains(formatSnapshot(airborne), "NONE beneath") {
		t.Error("Expected missing ground to be reported")
	}

	if formatSnapshot(nil) != "No vehicle state available" {
		t.Error("Expected placeholder for nil snapshot")
	}
}

func TestFormatDriveResult(t *testing.T) {
	result := &service.DriveResult{
		TicksExecuted:    600,
		RequestedTicks:   900,
		Truncated:        true,
		Limit:            service.MaxBulkTicks,
		StoppedReason:    "elapsed must be in (0, 1000] ms",
		StoppedOnSegment: 3,
		EndSpeed:         20.5,
		MarksLaid:        2,
		Segments: []service.SegmentInfo{
			{Idx: 1, Controls: "w", Ticks: 600, ElapsedMS: 16.67, SpeedAfter: 20.5, GroundFound: true},
		},
		State: testSnapshot(),
	}

	text := formatDriveResult("abc", result)
	for _, want := range []string{"Executed 600/900 frames", "Truncated at the 600 frame limit", "Stopped on segment 3", "1. w x600", "marks 2"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in %s", want, text)
		}
	}
}

func TestFormatTrail(t *testing.T) {
	trail := &service.TrailResponse{
		Marks: []service.TrailMark{
			{TireMark: engine.TireMark{LeftPosition: mgl64.Vec3{1, 0, 2}, RightPosition: mgl64.Vec3{3, 0, 2}}, Index: 4, Opacity: 0.5},
		},
		TotalMarks: 5,
		TotalLaid:  7,
		Capacity:   200,
		Page:       1,
		TotalPages: 5,
		HasNext:    true,
	}

	text := formatTrail(trail)
	for _, want := range []string{"5 kept of 7 laid (capacity 200)", "#4 L(1.00, 0.00, 2.00)", "opacity 0.50", "page 2"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in %s", want, text)
		}
	}
}

func TestFormatTelemetry(t *testing.T) {
	if formatTelemetry(nil) != "No telemetry recorded" {
		t.Error("Expected placeholder for no samples")
	}

	text := formatTelemetry([]service.TelemetrySample{
		{Tick: 9, Controls: "s", ElapsedMS: 100, Speed: 8.3},
		{Tick: 8, Controls: "w", ElapsedMS: 16.67, Speed: 21, GroundFound: true, SpeedCapped: true},
	})
	for _, want := range []string{"Last 2 frame(s)", "frame 9 s", "no-ground", "capped"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in %s", want, text)
		}
	}
}

// setupAPI runs the real REST API without telemetry recording or websockets
func setupAPI(t *testing.T) *httptest.Server {
	t.Helper()
	configs, err := config.NewManager("../../configs")
	if err != nil {
		t.Fatalf("Failed to load configs: %v", err)
	}
	svc := service.NewDriveService(session.NewManager(zerolog.Nop()), configs)
	ts := httptest.NewServer(api.NewServer(svc, nil, zerolog.Nop()))
	t.Cleanup(ts.Close)
	return ts
}

func TestClient_Integration(t *testing.T) {
	ts := setupAPI(t)
	client := NewClient(ts.URL)
	ctx := context.Background()

	var created service.SessionInfo
	if err := client.apiCall(ctx, "POST", "/api/sessions", map[string]string{"config_id": "classic"}, &created); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	id := created.ID

	call := func(name string, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]any) (string, bool) {
		t.Helper()
		if _, ok := args["session_id"]; !ok {
			args["session_id"] = id
		}
		result, err := handler(ctx, toolRequest(name, args))
		if err != nil {
			t.Fatalf("%s failed: %v", name, err)
		}
		return resultText(t, result), result.IsError
	}

	text, isErr := call("tick", client.handleTick, map[string]any{"keys": "w", "ticks": float64(120)})
	if isErr || !strings.Contains(text, "Ran 120 frame(s) holding w") || !strings.Contains(text, "Frame: 120") {
		t.Errorf("Unexpected tick result: %s", text)
	}

	text, isErr = call("drive", client.handleDrive, map[string]any{
		"segments": []any{map[string]any{"keys": "s", "elapsed_ms": 100.0, "ticks": 3.0}},
		"intent":   "brake hard",
	})
	if isErr || !strings.Contains(text, "Executed 3/3 frames") || !strings.Contains(text, "marks 3") {
		t.Errorf("Unexpected drive result: %s", text)
	}

	text, isErr = call("tire_trail", client.handleTireTrail, map[string]any{"limit": float64(2)})
	if isErr || !strings.Contains(text, "3 kept of 3 laid (capacity 200), page 1/2") {
		t.Errorf("Unexpected trail result: %s", text)
	}

	text, isErr = call("tick", client.handleTick, map[string]any{"keys": "w", "elapsed_ms": 1500.0})
	if !isErr || !strings.Contains(text, "elapsed") {
		t.Errorf("Expected elapsed error, got: %s", text)
	}

	_, isErr = call("telemetry", client.handleTelemetry, map[string]any{})
	if !isErr {
		t.Error("Expected telemetry to be unavailable without a recorder")
	}

	text, isErr = call("reset_vehicle", client.handleReset, map[string]any{})
	if isErr || !strings.Contains(text, "Vehicle reset to spawn") || !strings.Contains(text, "Tire marks: 0") {
		t.Errorf("Unexpected reset result: %s", text)
	}

	text, isErr = call("vehicle_state", client.handleVehicleState, map[string]any{})
	if isErr || !strings.Contains(text, "Speed: 0.00") {
		t.Errorf("Unexpected state after reset: %s", text)
	}

	text, _ = call("list_configs", client.handleListConfigs, map[string]any{})
	for _, want := range []string{"config_id: classic", "config_id: drift", "config_id: hills"} {
		if !strings.Contains(text, want) {
			t.Errorf("Expected %q in %s", want, text)
		}
	}

	text, _ = call("list_sessions", client.handleListSessions, map[string]any{})
	if !strings.Contains(text, "Active Sessions (1)") || !strings.Contains(text, id) {
		t.Errorf("Unexpected session list: %s", text)
	}

	text, isErr = call("get_session", client.handleGetSession, map[string]any{"session_id": "nope"})
	if !isErr {
		t.Errorf("Expected missing session error, got: %s", text)
	}
}

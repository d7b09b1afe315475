package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wricardo/mcp-training/drivesim/game/engine"
	"github.com/wricardo/mcp-training/drivesim/game/service"
)

// Client is a thin MCP client that proxies to the REST API
type Client struct {
	baseURL    string
	httpClient *http.Client
	mcpServer  *server.MCPServer
}

// NewClient creates a new MCP client that calls the REST API
func NewClient(baseURL string) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	c.initMCPServer()
	return c
}

// initMCPServer initializes the MCP server with all tools
func (c *Client) initMCPServer() {
	c.mcpServer = server.NewMCPServer(
		"Drive Simulator",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions(`Drive Simulator - MCP Interface

This is a thin client that proxies all requests to the REST API server.

You drive a car across 3D terrain by holding keys (w=throttle, s=brake/reverse,
a/d=steer) for a number of frames. Each frame advances the simulation by
elapsed_ms of simulated time (default one 60 FPS frame).

AVAILABLE TOOLS:
- create_session: Start a new car on a course
- list_sessions / get_session: Inspect sessions
- vehicle_state: Position, speed, heading and ground contact
- tick: Hold keys for N frames - requires intent explanation
- drive: Run several tick segments at once - requires intent explanation
- reset_vehicle: Return the car to the course spawn
- tire_trail: Skid marks laid while braking
- telemetry: Recorded per-frame history
- list_configs: Available courses
- driving_instructions: How the car handles

NOTE: The 'intent' parameter on tick/drive serves as rubber duck debugging - explain your reasoning!`),
	)

	c.registerTools()
}

func sessionProperty() map[string]any {
	return map[string]any{
		"type":        "string",
		"description": "Session ID",
	}
}

func segmentProperties() map[string]any {
	return map[string]any{
		"keys": map[string]any{
			"type":        "string",
			"description": "Held keys: any of w/a/s/d (e.g. \"wa\"), or words like \"forward,left\". Empty means coast.",
		},
		"elapsed_ms": map[string]any{
			"type":        "number",
			"description": "Simulated milliseconds per frame, (0, 1000]. Default 16.67",
		},
		"ticks": map[string]any{
			"type":        "integer",
			"description": "Number of frames to hold the keys. Default 1, at most 600 per call",
		},
	}
}

// registerTools registers all MCP tools
func (c *Client) registerTools() {
	// Session management
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a new driving session on a course",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"config_id": map[string]any{
					"type":        "string",
					"description": "Course to drive on, from list_configs (optional)",
				},
			},
		},
	}, c.handleCreateSession)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List all active driving sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleListSessions)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get details of a specific session",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleGetSession)

	// Driving
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "vehicle_state",
		Description: "Get the car's position, speed, heading and ground contact",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleVehicleState)

	tickProps := segmentProperties()
	tickProps["session_id"] = sessionProperty()
	tickProps["intent"] = map[string]any{
		"type":        "string",
		"description": "Brief explanation of the intent behind this input (serves as a rubber duck to help explain your reasoning)",
	}
	tickProps["reset"] = map[string]any{
		"type":        "boolean",
		"description": "Respawn before driving",
	}
	c.mcpServer.AddTool(mcp.Tool{
		Name:        "tick",
		Description: "Hold keys for a number of frames",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: tickProps,
			Required:   []string{"session_id"},
		},
	}, c.handleTick)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "drive",
		Description: "Run a sequence of key segments; stops at the first invalid one and runs at most 600 frames",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProperty(),
				"segments": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":       "object",
						"properties": segmentProperties(),
					},
					"description": "Segments to run in order",
				},
				"intent": map[string]any{
					"type":        "string",
					"description": "Brief explanation of the intent behind this sequence (serves as a rubber duck to help explain your reasoning)",
				},
				"reset": map[string]any{
					"type":        "boolean",
					"description": "Respawn before driving",
				},
			},
			Required: []string{"session_id", "segments"},
		},
	}, c.handleDrive)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "reset_vehicle",
		Description: "Return the car to the course spawn and clear its tire marks",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{"session_id": sessionProperty()},
			Required:   []string{"session_id"},
		},
	}, c.handleReset)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "tire_trail",
		Description: "Get the tire marks laid while braking, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProperty(),
				"page": map[string]any{
					"type":        "integer",
					"description": "Page number",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Marks per page (max 100)",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleTireTrail)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "telemetry",
		Description: "Get recorded frames for a session, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"session_id": sessionProperty(),
				"limit": map[string]any{
					"type":        "integer",
					"description": "Number of frames (default 20, max 1000)",
				},
			},
			Required: []string{"session_id"},
		},
	}, c.handleTelemetry)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "list_configs",
		Description: "List available courses",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleListConfigs)

	c.mcpServer.AddTool(mcp.Tool{
		Name:        "driving_instructions",
		Description: "Get instructions on controls and vehicle handling",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]any{},
		},
	}, c.handleDrivingInstructions)
}

// GetMCPServer returns the underlying MCP server for serving
func (c *Client) GetMCPServer() *server.MCPServer {
	return c.mcpServer
}

// Helper methods for API calls

func (c *Client) apiCall(ctx context.Context, method, path string, body any, result any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return err
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		json.NewDecoder(resp.Body).Decode(&errResp)
		if msg, ok := errResp["error"]; ok {
			return fmt.Errorf("%s", msg)
		}
		return fmt.Errorf("API error: %d", resp.StatusCode)
	}

	if result != nil {
		return json.NewDecoder(resp.Body).Decode(result)
	}

	return nil
}

func sessionPath(sessionID, suffix string) string {
	return "/api/sessions/" + url.PathEscape(sessionID) + suffix
}

// segmentFrom reads one tick request out of tool arguments
func segmentFrom(args map[string]any) service.TickRequest {
	var req service.TickRequest
	req.Keys, _ = args["keys"].(string)
	if ms, ok := args["elapsed_ms"].(float64); ok {
		req.ElapsedMS = ms
	}
	if n, ok := args["ticks"].(float64); ok {
		req.Ticks = int(n)
	}
	return req
}

// Tool handlers

func (c *Client) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	configID := request.GetString("config_id", "")

	body := map[string]string{}
	if configID != "" {
		body["config_id"] = configID
	}

	var session service.SessionInfo
	if err := c.apiCall(ctx, "POST", "/api/sessions", body, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("Created session: %s\nCourse: %s\n\n%s", session.ID, session.ConfigName, formatSnapshot(session.State))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var response struct {
		Count    int                   `json:"count"`
		Sessions []service.SessionInfo `json:"sessions"`
	}

	if err := c.apiCall(ctx, "GET", "/api/sessions", nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Active Sessions (%d):\n\n", response.Count)
	for _, s := range response.Sessions {
		speed := 0.0
		if s.State != nil {
			speed = s.State.Speed
		}
		fmt.Fprintf(&b, "- %s (Course: %s, Created: %s, Speed: %.2f)\n",
			s.ID, s.ConfigName, s.CreatedAt.Format("15:04:05"), speed)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")

	var session service.SessionInfo
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, ""), nil, &session); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSessionInfo(&session)), nil
}

func (c *Client) handleVehicleState(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")

	var state engine.Snapshot
	if err := c.apiCall(ctx, "GET", sessionPath(sessionID, "/state"), nil, &state); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatSnapshot(&state)), nil
}

func (c *Client) handleTick(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID, _ := args["session_id"].(string)

	// Intent parameter serves as rubber duck debugging - we don't need to process it further
	_ = request.GetString("intent", "")

	req := segmentFrom(args)
	req.Reset, _ = args["reset"].(bool)

	var result service.TickResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/tick"), req, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatTickResult(&result)), nil
}

func (c *Client) handleDrive(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	sessionID, _ := args["session_id"].(string)
	reset, _ := args["reset"].(bool)
	raw, _ := args["segments"].([]any)

	_ = request.GetString("intent", "")

	segments := make([]service.TickRequest, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return mcp.NewToolResultError("each segment must be an object with keys, elapsed_ms and ticks"), nil
		}
		segments = append(segments, segmentFrom(m))
	}

	body := map[string]any{
		"segments": segments,
		"reset":    reset,
	}

	var result service.DriveResult
	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/drive"), body, &result); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatDriveResult(sessionID, &result)), nil
}

func (c *Client) handleReset(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")

	var response struct {
		Message string           `json:"message"`
		State   *engine.Snapshot `json:"state"`
	}

	if err := c.apiCall(ctx, "POST", sessionPath(sessionID, "/reset"), nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := fmt.Sprintf("%s\n\n%s", response.Message, formatSnapshot(response.State))
	return mcp.NewToolResultText(result), nil
}

func (c *Client) handleTireTrail(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")

	query := url.Values{}
	if page := request.GetInt("page", 0); page > 0 {
		query.Set("page", fmt.Sprint(page))
	}
	if limit := request.GetInt("limit", 0); limit > 0 {
		query.Set("limit", fmt.Sprint(limit))
	}

	path := sessionPath(sessionID, "/trail")
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var trail service.TrailResponse
	if err := c.apiCall(ctx, "GET", path, nil, &trail); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatTrail(&trail)), nil
}

func (c *Client) handleTelemetry(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := request.GetString("session_id", "")
	limit := request.GetInt("limit", 20)

	var response struct {
		Count   int                       `json:"count"`
		Samples []service.TelemetrySample `json:"samples"`
	}
	path := fmt.Sprintf("%s?limit=%d", sessionPath(sessionID, "/telemetry"), limit)
	if err := c.apiCall(ctx, "GET", path, nil, &response); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(formatTelemetry(response.Samples)), nil
}

func (c *Client) handleListConfigs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var configs []service.ConfigInfo
	if err := c.apiCall(ctx, "GET", "/api/configs", nil, &configs); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var b strings.Builder
	b.WriteString("Available Courses:\n\n")
	for _, config := range configs {
		fmt.Fprintf(&b, "• %s (config_id: %s)\n  %s\n  Surfaces: %d, Max speed: %.1f, Top speed on throttle: %.2f\n\n",
			config.Name, config.ConfigID, config.Description, config.TerrainCount, config.MaxSpeed, config.TerminalSpeed)
	}

	return mcp.NewToolResultText(b.String()), nil
}

func (c *Client) handleDrivingInstructions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	instructions := `Drive Simulator - Instructions

CONTROLS (keys held for a frame):
• w - throttle forward
• s - brake, then reverse once stopped
• a / d - steer left / right (left wins if both are held)
• no keys - coast; friction slows the car every frame

FRAMES:
• Each frame advances the simulated clock by elapsed_ms (default 16.67, max 1000)
• elapsed_ms scales throttle and steering; friction and movement apply once per frame
• A single tick or drive call runs at most 600 frames

HANDLING:
• Speed is in units per frame. Holding w settles at a terminal speed below the
  course's max speed (see list_configs)
• Steering is strongest at low speed and weakens as speed rises
• Without throttle or steering input the car does not spin
• Vertical motion follows a spring and damper toward the ground under the car

GROUND:
• Courses are made of planes, boxes, ramps, heightfields and waves
• If nothing is under the car, it keeps its height (ground_found: false); drive
  back onto the course or use reset_vehicle

TIRE MARKS:
• Braking above the speed threshold lays a pair of tire marks, at most one per 50ms
  of simulated time
• The trail keeps the most recent 200 marks; older marks fade out over time

TIPS:
• Use drive with several segments to plan a maneuver in one call
• Check speed in vehicle_state before braking into a turn
• Use telemetry to review exactly what happened frame by frame`

	return mcp.NewToolResultText(instructions), nil
}

// Formatting helpers

func formatSessionInfo(session *service.SessionInfo) string {
	return fmt.Sprintf("Session: %s\nCourse: %s\nCreated: %s\n\n%s",
		session.ID, session.ConfigName,
		session.CreatedAt.Format("2006-01-02 15:04:05"),
		formatSnapshot(session.State))
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

func formatSnapshot(state *engine.Snapshot) string {
	if state == nil {
		return "No vehicle state available"
	}

	var b strings.Builder
	p := state.State.Position
	fmt.Fprintf(&b, "Position: (%.2f, %.2f, %.2f) | Speed: %.2f | Heading: %.1f° | Frame: %d\n",
		p.X(), p.Y(), p.Z(), state.Speed, degrees(state.Heading), state.Ticks)
	fmt.Fprintf(&b, "Velocity: (%.3f, %.3f) | Vertical: %.3f | Turn rate: %.4f\n",
		state.State.Velocity.X(), state.State.Velocity.Y(), state.State.VerticalVelocity, state.State.AngularVelocity)

	if state.GroundFound {
		b.WriteString("Ground: in contact\n")
	} else {
		b.WriteString("Ground: NONE beneath the car (height frozen)\n")
	}
	fmt.Fprintf(&b, "Tire marks: %d | Clock: %s", len(state.Trail), state.Clock.Format("15:04:05.000"))
	return b.String()
}

func formatEvents(b *strings.Builder, events []service.DriveEvent) {
	if len(events) == 0 {
		return
	}
	b.WriteString("\nEvents:\n")
	for _, event := range events {
		fmt.Fprintf(b, "- [frame %d] %s: %s\n", event.Tick, event.Type, event.Message)
	}
}

func formatTickResult(result *service.TickResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✓ Ran %d frame(s) holding %s\n", result.Ticks, result.Controls)
	if len(result.Marks) > 0 {
		fmt.Fprintf(&b, "Tire marks laid: %d\n", len(result.Marks))
	}
	if result.SpeedCapped {
		b.WriteString("Speed limited by max speed\n")
	}
	formatEvents(&b, result.Events)
	b.WriteString("\n")
	b.WriteString(formatSnapshot(result.State))
	return b.String()
}

func formatDriveResult(sessionID string, result *service.DriveResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Session: %s\n", sessionID)
	fmt.Fprintf(&b, "Executed %d/%d frames\n", result.TicksExecuted, result.RequestedTicks)
	if result.Truncated {
		fmt.Fprintf(&b, "Truncated at the %d frame limit\n", result.Limit)
	}
	if result.StoppedReason != "" {
		fmt.Fprintf(&b, "Stopped on segment %d: %s\n", result.StoppedOnSegment, result.StoppedReason)
	}

	sp, ep := result.StartPosition, result.EndPosition
	fmt.Fprintf(&b, "Moved (%.1f, %.1f, %.1f)→(%.1f, %.1f, %.1f), distance %.2f, speed %.2f→%.2f, marks %d\n",
		sp.X(), sp.Y(), sp.Z(), ep.X(), ep.Y(), ep.Z(), result.Distance, result.StartSpeed, result.EndSpeed, result.MarksLaid)

	if len(result.Segments) > 0 {
		b.WriteString("\nSegments (this call):\n")
		for _, s := range result.Segments {
			ground := "ground"
			if !s.GroundFound {
				ground = "NO GROUND"
			}
			fmt.Fprintf(&b, "%d. %s x%d @%.1fms speed %.2f→%.2f at (%.1f, %.1f, %.1f) marks=%d %s\n",
				s.Idx, s.Controls, s.Ticks, s.ElapsedMS, s.SpeedBefore, s.SpeedAfter,
				s.Position.X(), s.Position.Y(), s.Position.Z(), s.Marks, ground)
		}
	}

	formatEvents(&b, result.Events)
	b.WriteString("\n")
	b.WriteString(formatSnapshot(result.State))
	return b.String()
}

func formatTrail(trail *service.TrailResponse) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tire marks: %d kept of %d laid (capacity %d), page %d/%d\n",
		trail.TotalMarks, trail.TotalLaid, trail.Capacity, trail.Page, trail.TotalPages)
	for _, m := range trail.Marks {
		l, r := m.LeftPosition, m.RightPosition
		fmt.Fprintf(&b, "#%d L(%.2f, %.2f, %.2f) R(%.2f, %.2f, %.2f) heading %.1f° opacity %.2f\n",
			m.Index, l.X(), l.Y(), l.Z(), r.X(), r.Y(), r.Z(), degrees(engine.WrapAngle(m.Rotation)), m.Opacity)
	}
	if trail.HasNext {
		fmt.Fprintf(&b, "More marks on page %d\n", trail.Page+1)
	}
	return b.String()
}

func formatTelemetry(samples []service.TelemetrySample) string {
	if len(samples) == 0 {
		return "No telemetry recorded"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Last %d frame(s), newest first:\n", len(samples))
	for _, s := range samples {
		flags := ""
		if !s.GroundFound {
			flags += " no-ground"
		}
		if s.SpeedCapped {
			flags += " capped"
		}
		fmt.Fprintf(&b, "frame %d %s @%.1fms pos (%.2f, %.2f, %.2f) speed %.2f vy %.3f%s\n",
			s.Tick, s.Controls, s.ElapsedMS, s.Position.X(), s.Position.Y(), s.Position.Z(), s.Speed, s.VerticalVelocity, flags)
	}
	return b.String()
}

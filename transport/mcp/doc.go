// Package mcp exposes the driving simulator to AI agents over the Model
// Context Protocol.
//
// The Client is a thin proxy: every tool call becomes a request against the
// REST API served by package api, and the JSON response is rendered as text
// for the agent. The same MCP server is used for stdio mode and for the /mcp
// HTTP endpoint.
//
// Tools:
//   - create_session, list_sessions, get_session: session management
//   - vehicle_state: position, speed, heading and ground contact
//   - tick: hold keys for a number of frames
//   - drive: run several key segments in one call, at most 600 frames
//   - reset_vehicle: respawn and clear tire marks
//   - tire_trail: paginated skid marks
//   - telemetry: recorded frames, newest first
//   - list_configs: available courses with their top speeds
//   - driving_instructions: controls and handling notes
//
// tick and drive accept an intent argument that is never sent to the server.
// It gives the agent a place to state what it is trying to do.
//
// Usage:
//
//	client := mcp.NewClient("http://localhost:8080")
//	server.ServeStdio(client.GetMCPServer())
package mcp

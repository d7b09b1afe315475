// Package service provides the business logic layer for the driving simulation.
//
// The service package implements:
//   - Multi-session vehicle management
//   - Course profile loading
//   - Tick and bulk drive processing with input validation
//   - Tire trail paging with fade-out opacity
//   - Optional telemetry recording
//
// Core Interfaces:
//
// DriveService is the main service interface providing high-level operations.
// SessionManager handles session creation, retrieval, and lifecycle.
// ConfigManager loads and saves course profiles.
// Recorder stores per-tick telemetry when one is attached.
//
// Architecture:
//
// The service layer sits between the transport layer (HTTP/WebSocket/MCP) and
// the simulation engine. Each session owns its own engine.Vehicle and the
// collidables built from its course, so sessions never share state.
//
// Usage:
//
//	sessionMgr := session.NewManager(log)
//	configMgr := config.NewManager("configs")
//	svc := service.NewDriveService(sessionMgr, configMgr, service.WithLogger(log))
//
//	info, err := svc.CreateSession(ctx, "classic")
//	if err != nil {
//		log.Fatal().Err(err).Send()
//	}
//
//	// Hold throttle and left for half a second at 60 fps
//	res, err := svc.Tick(ctx, info.ID, service.TickRequest{Keys: "wa", Ticks: 30})
//
// Every mutating call saves the session through the SessionManager afterwards;
// a failed save is logged and does not fail the call.
package service

// Package api provides the HTTP REST API for the driving simulation.
//
// Endpoints:
//
// Sessions:
//   - POST   /api/sessions                  create a session ({"config_id": "classic"})
//   - GET    /api/sessions                  list sessions (?sort=created|accessed&order=asc|desc&limit=N)
//   - GET    /api/sessions/unified          sessions for a multi-car view (?sessionIds=a,b or ?configName=x)
//   - GET    /api/sessions/{id}             session info with its current snapshot
//   - DELETE /api/sessions/{id}             delete a session and its telemetry
//
// Simulation:
//   - GET  /api/sessions/{id}/state         current vehicle snapshot
//   - POST /api/sessions/{id}/tick          advance the car
//   - POST /api/sessions/{id}/drive         run a sequence of tick requests
//   - POST /api/sessions/{id}/reset         return the car to the course spawn
//   - GET  /api/sessions/{id}/trail         tire marks with opacity (?page&limit&order&fade_ms)
//   - GET  /api/sessions/{id}/telemetry     recorded ticks, newest first (?limit)
//
// Courses:
//   - GET  /api/configs                     list course profiles
//   - POST /api/configs                     save a course profile as JSON
//   - GET  /api/configs/{name}              one course profile
//
// Other:
//   - GET /api/health
//   - GET /ws?session={id}                  live state updates, see transport/websocket
//
// A tick request holds the controls, the frame length and a repeat count:
//
//	{"keys": "wa", "elapsed_ms": 16.67, "ticks": 30, "reset": false}
//
// keys accepts w/a/s/d, arrows and words ("forward,left"); controls may be
// given as an object instead ({"forward": true, "turn_left": true}). An
// omitted elapsed_ms is one 60 FPS frame and an omitted ticks is 1. Frames
// longer than 1000ms are rejected, and one call runs at most 600 ticks. A
// drive request wraps several tick requests:
//
//	{"segments": [{"keys": "w", "ticks": 120}, {"keys": "s", "elapsed_ms": 100, "ticks": 3}], "reset": true}
//
// Drive stops at the first invalid segment and reports it in stopped_reason
// and stopped_on_segment; ticks past the 600 budget are counted in
// requested_ticks but not run (truncated, limit).
//
// Tick, drive and reset responses are also pushed to websocket clients of the
// session.
//
// Errors are returned as JSON:
//
//	{"error": "session not found: zzzz"}
//
// with 404 for unknown sessions or courses, 400 for invalid requests or
// profiles, 501 for telemetry when no recorder is attached and 500 otherwise.
package api

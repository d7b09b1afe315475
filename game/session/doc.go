// Package session provides session management for the driving simulation.
//
// Each session owns one engine.Vehicle together with the course it was
// created on and the collidables built from that course. Sessions use
// 4-character hex IDs generated from crypto/rand and are looked up
// case-insensitively.
//
// The Manager is safe for concurrent use. With a SessionPersistence attached
// it saves new sessions immediately, saves on request after every mutation
// and lazily loads sessions that are on disk but not in memory. Persisted
// files hold the vehicle state, tire trail and simulated clock; the course is
// reloaded from the config manager by ID.
//
// Saving copies the vehicle under the session's own lock, so SaveAllSessions
// can run from a background ticker while callers drive.
//
// Usage:
//
//	persistence, err := session.NewFilePersistence("sessions", configMgr)
//	manager := session.NewManagerWithPersistence(persistence, log)
//	if err := manager.LoadPersistedSessions(); err != nil {
//		log.Warn().Err(err).Msg("could not load sessions")
//	}
//
//	sess, err := manager.Create("", "classic", configMgr.GetDefault())
//
// CleanupExpiredSessions evicts idle sessions from memory only; they are
// loaded again from disk on the next Get.
package session

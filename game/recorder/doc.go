// Package recorder keeps a queryable history of every simulated tick.
//
// A Recorder implements service.Recorder on top of gorm and a pure-Go SQLite
// driver. Each tick becomes a row in telemetry_samples and each tire mark a
// row in tire_mark_records, tagged with the session ID and the run ID of the
// process that wrote it. The vehicle trail only holds the most recent marks;
// the recorder keeps the newest Retain samples and Retain marks per session
// (DefaultRetention unless changed) until the session is deleted.
//
//	rec, err := recorder.NewRecorder("telemetry.db", log)
//	if err != nil {
//		return err
//	}
//	defer rec.Close()
//	svc := service.NewDriveService(sessions, configs, service.WithRecorder(rec))
//
// An empty path uses a private in-memory database.
package recorder

// Package config provides course profile management for the driving simulation.
//
// A course profile is a course.Config: the car's tuning, its spawn pose, the
// terrain surfaces it drives on and how long tire marks take to fade. Profiles
// live in a directory as JSON, YAML or TOML files and are read through viper,
// so the same keys work in every format:
//
//	name: Drift Pad
//	tuning:
//	  lateral_friction: 0.97
//	terrain:
//	  - type: plane
//	    half_extent: 1000
//
// Tuning fields a file leaves out keep their engine.DefaultTuning values. Every
// loaded profile is validated with course.ValidateConfig; a profile that fails
// is reported as ErrInvalidConfig and skipped by ListConfigs.
//
// The config ID is the file name without its extension. When two files share
// an ID the first extension in Extensions wins. SaveConfig always writes
// indented JSON.
//
// Usage:
//
//	manager, err := config.NewManager("configs", config.WithLogger(log))
//	if err != nil {
//		log.Fatal().Err(err).Send()
//	}
//
//	drift, err := manager.LoadConfig("drift")
//	defaultCourse := manager.GetDefault() // classic, else the first valid profile
//	infos, err := manager.ListConfigs()
//
// Loaded profiles are cached; RefreshCache drops the cache after files change
// on disk.
package config

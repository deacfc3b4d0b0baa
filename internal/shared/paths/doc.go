// Package paths provides standardized filesystem paths.
//
// Every instrumented project carries one hidden state directory. All
// components resolve their files through State so the layout stays in one
// place.
//
// # Directory Structure
//
//	<project>/.api-diagnostics/
//	  ├── config.yaml          (project state record)
//	  ├── enabled              (present while monitoring runs)
//	  ├── backups/             (one live snapshot per instrumented file)
//	  │   └── history/         (zstd-compressed superseded snapshots)
//	  ├── logs/
//	  │   └── api-diagnostics.log
//	  ├── generated/           (generated middleware modules)
//	  └── index/
//	      └── checkpoint.zst   (correlation index checkpoint)
//
// # Usage
//
//	state := paths.NewState("/work/shop", "")
//	logFile := state.LogPath("")  // /work/shop/.api-diagnostics/logs/api-diagnostics.log
package paths

// Package config loads the settings of the gridsync server and clients.
//
// Settings come from three sources, later ones overriding earlier ones:
//
//  1. Built-in defaults (Default)
//  2. A TOML file, gridsync.toml by default
//  3. GRIDSYNC_* environment variables, one per setting: the setting
//     session.readOnly is read from GRIDSYNC_SESSION_READ_ONLY
//
// # Example
//
//	[server]
//	addr = ":8080"
//	allowedOrigins = ["https://sheets.example.com"]
//
//	[store]
//	driver = "bolt"
//	path = "/var/lib/gridsync/docs.db"
//
//	[session]
//	url = "ws://localhost:8080"
//	document = "budget"
//	readOnly = false
//
//	[log]
//	level = "debug"
//
// Watch reloads the file when it changes. Only the settings that can change
// at run time are meant to be read from reloaded configurations: log.level
// and session.readOnly.
//
// # Sub-packages
//
//   - loader: TOML file and environment variable loading into maps
//   - watcher: file watching for live reload
package config

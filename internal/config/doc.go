// Package config holds the settings of the obplatform CLI.
//
// Values are layered, each source overriding the previous one:
//   - Default()
//   - a YAML file (LoadFromFile)
//   - OBPLATFORM_ environment variables (LoadFromEnv), which may come from
//     a .env file
//   - command-line flags (Merge)
//
// Sizes accept unit suffixes ("1000KB", "4 MB") and durations use Go
// syntax ("1s", "500ms").
package config

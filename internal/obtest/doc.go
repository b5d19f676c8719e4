// Package obtest runs an in-process fake of the occupant behavior database
// API for tests. It serves behaviors, studies, the health probe and the
// export job workflow, and records every request it receives.
package obtest

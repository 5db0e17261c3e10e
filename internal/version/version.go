// Package version holds the library release identifier recorded in
// serialized programs and printed by the CLI.
package version

// Release is the symflow library version.
const Release = "0.1.0"

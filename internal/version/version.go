// ABOUTME: Version and product identity constants
// ABOUTME: Used by the TUI header, control-surface hello, and mDNS TXT records
package version

const (
	// Version is the semantic version of this build.
	Version = "0.3.0"

	// Product is the short product name.
	Product = "beatgen"

	// Manufacturer identifies the project in service advertisements.
	Manufacturer = "beatgen project"
)

// ABOUTME: Build and product identity constants
// ABOUTME: Shown in logs and the UI footer
package version

const (
	Version      = "0.1.0"
	Product      = "Nomad Display"
	Manufacturer = "Nomad Pi"
)

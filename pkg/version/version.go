// Package version holds the build version, overridden at link time with
// -ldflags "-X boatpilot/pkg/version.Version=...".
package version

// Version is the boatpilot release.
var Version = "v0.1.0-dev"

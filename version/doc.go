// Package version reports build information for sonifyd.
//
// Version, git commit, branch and build time are set at compile time:
//
//	go build -ldflags "-X github.com/kbukum/sonify/version.Version=1.0.0" ./cmd/sonifyd
//
// Values left empty are filled from the module's embedded VCS stamp.
package version

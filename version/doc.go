// Package version reports the build of a streamkit binary.
//
// Values are injected with -ldflags and fall back to the module build info:
//
//	go build -ldflags "-X github.com/kbukum/streamkit/version.Version=1.2.0" ./cmd/flowctl
package version

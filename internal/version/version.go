// Package version reports the dungeonmaster release.
package version

import (
	_ "embed"
	"fmt"
	"runtime"
	"strings"
)

//go:embed VERSION
var raw string

// Get returns the release version, or "dev" when VERSION is empty.
func Get() string {
	if v := strings.TrimSpace(raw); v != "" {
		return v
	}
	return "dev"
}

// String formats the version with the Go toolchain and platform.
func String() string {
	return fmt.Sprintf("dungeonmaster %s (%s %s/%s)", Get(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

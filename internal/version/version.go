// Package version exposes build metadata stamped by the linker.
package version

// Overridden at build time:
//
//	go build -ldflags "-X github.com/loupelabs/loupe/internal/version.Version=v1.2.3 ..."
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// Info is the version payload served by the HTTP API and the version
// command.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

// Get returns the stamped build metadata.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildDate: BuildDate}
}

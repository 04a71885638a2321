// Package version exposes build information stamped in at link time.
package version

import "fmt"

// AppName identifies this service in banners and on the version endpoint.
const AppName = "multiroom-audio-backend"

// Stamped via -ldflags, for example:
//
//	-X github.com/soundmesh/multiroom-audio-backend/internal/version.Version=1.2.0
var (
	Version = "1.0.0"
	Commit  = ""
	Date    = ""
)

// Info is the build information payload served by the API.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Commit  string `json:"commit,omitempty"`
	Date    string `json:"date,omitempty"`
}

// GetInfo returns the build information of this binary.
func GetInfo() Info {
	return Info{Name: AppName, Version: Version, Commit: Commit, Date: Date}
}

// String renders a one-line banner like
// "multiroom-audio-backend 1.2.0 (ab12cd3, 2026-08-31)".
func (i Info) String() string {
	s := i.Name + " " + i.Version

	commit := i.Commit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	switch {
	case commit != "" && i.Date != "":
		return fmt.Sprintf("%s (%s, %s)", s, commit, i.Date)
	case commit != "":
		return fmt.Sprintf("%s (%s)", s, commit)
	case i.Date != "":
		return fmt.Sprintf("%s (%s)", s, i.Date)
	}
	return s
}

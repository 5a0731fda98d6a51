package apiexec

import (
	"fmt"
	"runtime"
)

// Set through -ldflags "-X github.com/devgrupoglobalsoft/apiexec.GitCommit=..."
// by release builds.
var (
	Version   = "v0.4.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// BuildInfo describes the running build.
type BuildInfo struct {
	Version   string `json:"version" yaml:"version"`
	Commit    string `json:"commit" yaml:"commit"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
}

func CurrentBuild() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

func (b BuildInfo) String() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s)", b.Version, b.Commit, b.BuildDate, b.GoVersion)
}

package health

import (
	"os"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

type BuildInfo struct {
	Version   string    `json:"version"`
	GitCommit string    `json:"git_commit"`
	BuildTime time.Time `json:"build_time,omitempty"`
	Modified  bool      `json:"modified"`
	GoVersion string    `json:"go_version"`
	OS        string    `json:"os"`
	Arch      string    `json:"arch"`
}

// ReadBuildInfo combines the VCS stamp embedded by the Go toolchain with
// BUILD_VERSION / BUILD_COMMIT / BUILD_TIME overrides from the environment.
func ReadBuildInfo() BuildInfo {
	info := BuildInfo{
		Version:   "dev",
		GitCommit: "unknown",
		GoVersion: runtime.Version(),
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		if bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}

		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				info.GitCommit = setting.Value
			case "vcs.time":
				if t, err := time.Parse(time.RFC3339, setting.Value); err == nil {
					info.BuildTime = t
				}
			case "vcs.modified":
				info.Modified = setting.Value == "true"
			}
		}
	}

	if v := strings.TrimSpace(os.Getenv("BUILD_VERSION")); v != "" {
		info.Version = v
	}
	if v := strings.TrimSpace(os.Getenv("BUILD_COMMIT")); v != "" {
		info.GitCommit = v
	}
	if v := os.Getenv("BUILD_TIME"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			info.BuildTime = t
		}
	}

	return info
}

func (b BuildInfo) ShortCommit() string {
	if len(b.GitCommit) > 7 {
		return b.GitCommit[:7]
	}
	return b.GitCommit
}

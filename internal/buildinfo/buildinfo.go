package buildinfo

import "runtime/debug"

// Set at link time with -ldflags "-X itinerary/internal/buildinfo.Version=...".
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

// Info returns the build metadata. Commit and BuiltAt fall back to the VCS
// stamp the toolchain embeds when they were not set at link time.
func Info() map[string]string {
    commit, builtAt := Commit, BuiltAt
    goVersion := ""
    if bi, ok := debug.ReadBuildInfo(); ok {
        goVersion = bi.GoVersion
        for _, s := range bi.Settings {
            switch s.Key {
            case "vcs.revision":
                if commit == "" { commit = s.Value }
            case "vcs.time":
                if builtAt == "" { builtAt = s.Value }
            }
        }
    }
    return map[string]string{
        "version":   Version,
        "commit":    commit,
        "builtAt":   builtAt,
        "goVersion": goVersion,
    }
}

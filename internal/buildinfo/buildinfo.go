// Package buildinfo reports what the running binary was built from.
package buildinfo

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
)

type Info struct {
	Version   string
	Tags      string
	GoVersion string
	Revision  string
	Modified  bool
}

var read = sync.OnceValue(func() Info {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return Info{Version: "dev"}
	}
	return fromBuildInfo(info)
})

func fromBuildInfo(info *debug.BuildInfo) Info {
	out := Info{Version: info.Main.Version, GoVersion: info.GoVersion}
	if out.Version == "" || out.Version == "(devel)" {
		out.Version = "dev"
	}
	for _, setting := range info.Settings {
		switch setting.Key {
		case "-tags":
			out.Tags = setting.Value
		case "vcs.revision":
			out.Revision = setting.Value
		case "vcs.modified":
			out.Modified = setting.Value == "true"
		}
	}
	return out
}

// Read returns the build information of the running binary, with Version
// "dev" when the module version is unknown.
func Read() Info { return read() }

// Version returns the module version or "dev" when unset.
func Version() string { return read().Version }

// VersionWithTags returns the version plus, when known, the VCS revision
// and build tags, e.g. "dev (rev 1a2b3c4d5e6f, tags: netgo)".
func VersionWithTags() string {
	return read().String()
}

func (i Info) String() string {
	var extra []string
	if i.Revision != "" {
		rev := i.Revision[:min(len(i.Revision), 12)]
		if i.Modified {
			rev += "-dirty"
		}
		extra = append(extra, "rev "+rev)
	}
	if i.Tags != "" {
		extra = append(extra, "tags: "+i.Tags)
	}
	if len(extra) == 0 {
		return i.Version
	}
	return fmt.Sprintf("%s (%s)", i.Version, strings.Join(extra, ", "))
}

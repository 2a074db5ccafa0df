// Package version reports the version of this module as built into the running binary.
package version

import "runtime/debug"

// Default is returned when the binary carries no module version, ex. under "go test" or "go run".
const Default = "dev"

const modulePath = "github.com/tetratelabs/wasmengine"

// GetVersion returns the version of this module the binary was built with: the main module's when this is the main
// module, or the dependency's version otherwise.
func GetVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Default
	}
	return versionOf(info)
}

func versionOf(info *debug.BuildInfo) string {
	if info.Main.Path == modulePath {
		return orDefault(info.Main.Version)
	}
	for _, dep := range info.Deps {
		if dep.Path != modulePath {
			continue
		}
		if dep.Replace != nil {
			return orDefault(dep.Replace.Version)
		}
		return orDefault(dep.Version)
	}
	return Default
}

func orDefault(v string) string {
	if v == "" || v == "(devel)" {
		return Default
	}
	return v
}

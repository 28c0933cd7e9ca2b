// SPDX-License-Identifier: MIT
//
// Package build carries version metadata embedded at link time, e.g.
//
//	go build -ldflags "-X hvstream/pkg/build.buildVersion=0.3.0 -X hvstream/pkg/build.buildCommit=$(git rev-parse --short HEAD)"
//
// Development builds without ldflags report the defaults.
package build

import (
	"errors"
	"fmt"
)

// Info is the resolved build metadata.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the version line printed by --version.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.Time)
}

// Package-level variables populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = defaultInfo()
)

func defaultInfo() *Info {
	return &Info{
		Name:        "hvstream",
		Description: "Stream a compiled signal graph to an audio output device for a fixed number of frames",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the ldflags variables into the build info. Every
// variable that is set is applied; the returned error names the ones
// that were missing so release builds can treat it as fatal while
// development builds just log it.
func Initialize() error {
	var errs []error
	set := func(name, val string, dst *string) {
		if val == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
			return
		}
		*dst = val
	}
	set("BuildName", buildName, &buildInfo.Name)
	set("BuildTime", buildTime, &buildInfo.Time)
	set("BuildCommit", buildCommit, &buildInfo.Commit)
	set("BuildVersion", buildVersion, &buildInfo.Version)
	return errors.Join(errs...)
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() *Info {
	return buildInfo
}

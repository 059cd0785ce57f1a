package version

import "github.com/Masterminds/semver/v3"

// fallback is reported when the build did not stamp a usable version.
const fallback = "0.0.0-dev"

// Version is set at build time:
//
//	go build -ldflags "-X github.com/waggle-sensor/registration-agent/internal/version.Version=1.4.0"
var Version = fallback

// String returns the normalized build version.
func String() string {
	v, err := semver.NewVersion(Version)
	if err != nil {
		return fallback
	}
	return v.String()
}

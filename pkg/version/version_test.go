package version

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetBuildInfo(t *testing.T) {
	info := GetBuildInfo()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GitCommit)
	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.Platform)
	assert.True(t, info.BuildTime.IsZero(), "the default build date is not a timestamp")
}

func TestGetBuildInfoParsesDate(t *testing.T) {
	orig := BuildDate
	t.Cleanup(func() { BuildDate = orig })
	BuildDate = "2026-01-13T20:00:00Z"

	want, _ := time.Parse(time.RFC3339, BuildDate)
	assert.True(t, GetBuildInfo().BuildTime.Equal(want))
}

func TestBuildInfoString(t *testing.T) {
	info := BuildInfo{Version: "v1.2.0", GitCommit: "0123456789abcdef", Platform: "linux/amd64"}
	assert.Equal(t, "v1.2.0 (0123456, linux/amd64)", info.String())

	info.GitCommit = "abc"
	assert.Equal(t, "v1.2.0 (abc, linux/amd64)", info.String())
}

func TestUserAgent(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })
	Version = "v0.9.0"
	assert.Equal(t, "itsmctl/v0.9.0 ("+Platform+")", UserAgent("itsmctl"))
}

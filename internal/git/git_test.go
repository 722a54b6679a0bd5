package git

import (
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRepoName(t *testing.T) {
	cases := map[string]string{
		"git@github.com:acme/api.git":       "acme/api",
		"https://github.com/acme/api":       "acme/api",
		"https://github.com/acme/api.git/":  "acme/api",
		"ssh://git@github.example/acme/web": "acme/web",
		"acme/api":                          "acme/api",
		"/srv/git/acme/tools":               "acme/tools",
	}
	for in, want := range cases {
		got, err := ParseRepoName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, bad := range []string{"", "api", "acme/"} {
		_, err := ParseRepoName(bad)
		assert.Error(t, err, bad)
	}
}

func TestDetectRepoName(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()
	require.NoError(t, exec.Command("git", "-C", dir, "init", "-q").Run())
	require.NoError(t, exec.Command("git", "-C", dir, "remote", "add", "origin", "git@github.com:acme/api.git").Run())

	got, err := DetectRepoName(dir)
	require.NoError(t, err)
	assert.Equal(t, "acme/api", got)

	_, err = DetectRepoName(t.TempDir())
	assert.Error(t, err)
}

package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandFlags(t *testing.T) {
	for _, name := range []string{"timeout", "tty", "verbose", "yes", "max-tries", "json"} {
		assert.NotNil(t, rootCmd.Flags().Lookup(name), "flag %q must be registered", name)
	}

	assert.Equal(t, "t", rootCmd.Flags().Lookup("timeout").Shorthand)
	assert.Equal(t, "y", rootCmd.Flags().Lookup("yes").Shorthand)
	assert.Equal(t, "v", rootCmd.Flags().Lookup("verbose").Shorthand)
}

func TestRootCommandSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, sub := range rootCmd.Commands() {
		names[sub.Name()] = true
	}

	assert.True(t, names["ask"])
	assert.True(t, names["config"])
	assert.True(t, names["version"])
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)

	require.Contains(t, out.String(), "nlsh ")
	assert.Contains(t, out.String(), Version)
}

package commands

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeCommand(t *testing.T) {
	dir := writeDriverDir(t)

	out, err := execute(t, "tree", "MiniScope", "--driver-dir", dir, "--no-color")
	require.NoError(t, err)

	assert.Contains(t, out, "MiniScope")
	assert.Contains(t, out, "Channel1")
	assert.Contains(t, out, "Channel2")
	assert.Contains(t, out, "coupling  (enum {AC|DC})")
}

func TestTreeCommandJSON(t *testing.T) {
	dir := writeDriverDir(t)

	out, err := execute(t, "tree", "MiniScope", "--driver-dir", dir, "--json")
	require.NoError(t, err)

	var node map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &node))
	assert.Equal(t, "MiniScope", node["name"])
	assert.Equal(t, "group", node["type"])
}

func TestTreeCommandUnknownDriverSuggests(t *testing.T) {
	dir := writeDriverDir(t)

	out, err := execute(t, "tree", "MiniScop", "--driver-dir", dir, "--no-color")
	require.Error(t, err)
	assert.Contains(t, out, "Did you mean: MiniScope?")
}

func TestDriversCommand(t *testing.T) {
	dir := writeDriverDir(t)

	out, err := execute(t, "drivers", "--driver-dir", dir, "--no-color")
	require.NoError(t, err)

	assert.Contains(t, out, "MiniScope")
	assert.Contains(t, out, "miniscope.py")
}

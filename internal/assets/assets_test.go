package assets

import (
	"encoding/json"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTemplatesParse(t *testing.T) {
	entries, err := fs.ReadDir(Templates, "templates")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	cfg, err := fs.ReadFile(Templates, "templates/tau_eval.yaml")
	require.NoError(t, err)
	var parsed map[string]interface{}
	require.NoError(t, yaml.Unmarshal(cfg, &parsed))
	assert.Contains(t, parsed, "tasks")

	data, err := fs.ReadFile(Templates, "templates/sample_dataset.json")
	require.NoError(t, err)
	var ds map[string][]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &ds))
	assert.Len(t, ds["test"], 4)
}

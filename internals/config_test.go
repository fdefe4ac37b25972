package internals

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
log_level: debug
default_out: [queue]
in:
  pg:
    driver: pg-notify
    host: localhost
    database: app
out:
  queue:
    driver: rabbitmq
    host: rabbit
    mode: stateful
    index: blog
  search:
    driver: elastic
    endpoints: [http://localhost:9200]
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfig_LoadFromYaml(t *testing.T) {
	config := &Config{}
	require.NoError(t, config.LoadFromYaml(writeConfig(t, sampleConfig)))

	assert.Equal(t, []string{"queue"}, config.DefaultOut)
	assert.Equal(t, "pg-notify", config.In["pg"]["driver"])
	assert.Equal(t, "stateful", config.Out["queue"]["mode"])
	assert.Equal(t, []any{"http://localhost:9200"}, config.Out["search"]["endpoints"])

	level, err := config.Level()
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, level)
}

func TestConfig_LoadFromYamlErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		message string
	}{
		{name: "invalid yaml", content: "in: [", message: "cannot parse config file"},
		{name: "missing driver", content: "out:\n  queue:\n    host: rabbit\n", message: "out queue: missing driver"},
		{name: "unknown default", content: "default_out: [queue]\n", message: "default_out references unknown out queue"},
		{name: "bad level", content: "log_level: loud\n", message: "invalid log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}
			err := config.LoadFromYaml(writeConfig(t, tt.content))
			assert.ErrorContains(t, err, tt.message)
		})
	}
}

func TestConfig_LoadFromYamlMissingFile(t *testing.T) {
	config := &Config{}
	err := config.LoadFromYaml(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "cannot find config file")
}

func TestConfig_PublisherName(t *testing.T) {
	config := &Config{}
	require.NoError(t, config.LoadFromYaml(writeConfig(t, sampleConfig)))

	name, err := config.PublisherName("")
	require.NoError(t, err)
	assert.Equal(t, "queue", name)

	name, err = config.PublisherName("search")
	require.NoError(t, err)
	assert.Equal(t, "search", name)

	_, err = config.PublisherName("nope")
	assert.Error(t, err)

	_, err = (&Config{}).PublisherName("")
	assert.Error(t, err)
}

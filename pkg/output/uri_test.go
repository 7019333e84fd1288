package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURIWithHosts(t *testing.T) {
	scheme, topic, hosts, err := ParseURI("kafka:my-topic@host1:9092,host2:9092")
	require.NoError(t, err)
	assert.Equal(t, "kafka", scheme)
	assert.Equal(t, "my-topic", topic)
	assert.Equal(t, []string{"host1:9092", "host2:9092"}, hosts)
}

func TestParseURIWithoutHosts(t *testing.T) {
	scheme, topic, hosts, err := ParseURI("fake:debug")
	require.NoError(t, err)
	assert.Equal(t, "fake", scheme)
	assert.Equal(t, "debug", topic)
	assert.Nil(t, hosts)
}

func TestParseURIRejectsMissingScheme(t *testing.T) {
	_, _, _, err := ParseURI("no-scheme-here")
	assert.Error(t, err)
}

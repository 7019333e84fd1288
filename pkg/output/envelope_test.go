package output

import (
	"encoding/json"
	"testing"

	"github.com/laik/harvest/pkg/container"
	"github.com/stretchr/testify/require"
)

func TestBuildEnvelopeExtractsJSONLogField(t *testing.T) {
	e := container.Entry{PodName: "web-1", ContainerName: "nginx", Namespace: "default"}
	raw, err := BuildEnvelope(e, `{"log":"x"}`)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "x", decoded["message"])
}

func TestBuildEnvelopePassesThroughPlainLine(t *testing.T) {
	e := container.Entry{PodName: "web-1"}
	raw, err := BuildEnvelope(e, "plain")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "plain", decoded["message"])
}

func TestBuildEnvelopeCustomFields(t *testing.T) {
	e := container.Entry{
		PodName:       "web-1",
		ContainerName: "nginx",
		ServiceName:   "web",
		Namespace:     "default",
		NodeName:      "node-a",
		IPs:           []string{"10.0.0.1"},
	}
	raw, err := BuildEnvelope(e, "hello")
	require.NoError(t, err)

	var decoded struct {
		Custom struct {
			NodeID      string   `json:"nodeId"`
			Container   string   `json:"container"`
			ServiceName string   `json:"serviceName"`
			IPs         []string `json:"ips"`
			NS          string   `json:"ns"`
			Version     string   `json:"version"`
		} `json:"custom"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, "web-1", decoded.Custom.NodeID)
	require.Equal(t, "nginx", decoded.Custom.Container)
	require.Equal(t, "web", decoded.Custom.ServiceName)
	require.Equal(t, "default", decoded.Custom.NS)
	require.Equal(t, []string{"10.0.0.1"}, decoded.Custom.IPs)
	require.Equal(t, EnvelopeVersion, decoded.Custom.Version)
	require.Equal(t, "hello", decoded.Message)
}

package output

import (
	"encoding/json"

	"github.com/laik/harvest/pkg/container"
)

// EnvelopeVersion is stamped on every outbound envelope.
const EnvelopeVersion = "v1.0.0"

type customFields struct {
	NodeID      string   `json:"nodeId"`
	Container   string   `json:"container"`
	ServiceName string   `json:"serviceName"`
	IPs         []string `json:"ips"`
	NS          string   `json:"ns"`
	Version     string   `json:"version"`
}

type envelope struct {
	Custom  customFields `json:"custom"`
	Message string       `json:"message"`
}

// BuildEnvelope stamps line with e's metadata and renders the outbound
// envelope. If line parses as JSON with a top-level string "log" field, that
// field's value is used as the message; otherwise line is used verbatim.
func BuildEnvelope(e container.Entry, line string) ([]byte, error) {
	env := envelope{
		Custom: customFields{
			NodeID:      e.PodName,
			Container:   e.ContainerName,
			ServiceName: e.ServiceName,
			IPs:         e.IPs,
			NS:          e.Namespace,
			Version:     EnvelopeVersion,
		},
		Message: extractMessage(line),
	}
	return json.Marshal(env)
}

func extractMessage(line string) string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return line
	}
	raw, ok := fields["log"]
	if !ok {
		return line
	}
	var logValue string
	if err := json.Unmarshal(raw, &logValue); err != nil {
		return line
	}
	return logValue
}

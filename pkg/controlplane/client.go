// Package controlplane connects to the control plane's server-sent-event
// stream and turns each event into a task-controller or output-multiplexer
// call.
package controlplane

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/laik/harvest/pkg/container"
	"github.com/laik/harvest/pkg/log"
	"github.com/laik/harvest/pkg/metrics"
	"github.com/laik/harvest/pkg/output"
	"github.com/laik/harvest/pkg/task"
)

const (
	reconnectDelay       = time.Second
	maxConsecutiveErrors = 5
)

// command is the wire schema of one event payload.
type command struct {
	Op          string   `json:"op"`
	NS          string   `json:"ns"`
	ServiceName string   `json:"service_name"`
	Output      string   `json:"output"`
	Filter      filter   `json:"filter"`
	NodeName    string   `json:"node_name"`
	PodName     string   `json:"pod_name"`
	IPs         []string `json:"ips"`
	Offset      int64    `json:"offset"`
}

type filter struct {
	MaxLength int    `json:"max_length"`
	Expr      string `json:"expr"`
}

// Client streams commands from apiServer for nodeName, reconciling them
// against ctl and preregistering outputs on mux.
type Client struct {
	apiServer  string
	nodeName   string
	ctl        *task.Controller
	mux        *output.Multiplexer
	httpClient *http.Client
}

// New creates a control-plane client. httpClient defaults to
// http.DefaultClient if nil.
func New(apiServer, nodeName string, ctl *task.Controller, mux *output.Multiplexer, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		apiServer:  apiServer,
		nodeName:   nodeName,
		ctl:        ctl,
		mux:        mux,
		httpClient: httpClient,
	}
}

// Run connects and streams until ctx is cancelled, reconnecting after
// reconnectDelay on any connect or stream failure.
func (c *Client) Run(ctx context.Context) {
	componentLog := log.WithComponent("controlplane")
	url := fmt.Sprintf("%s/%s", strings.TrimRight(c.apiServer, "/"), c.nodeName)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := c.stream(ctx, url, componentLog); err != nil {
			componentLog.Warn().Err(err).Msg("control-plane stream ended, reconnecting")
		}
		metrics.ControlPlaneReconnectsTotal.Inc()

		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// stream opens one connection and processes events until it closes or fails,
// or until five consecutive parse failures force a reconnect.
func (c *Client) stream(ctx context.Context, url string, componentLog zerolog.Logger) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("controlplane: build request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("controlplane: connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("controlplane: unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	var data string
	var consecutiveFailures int

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "":
			if data == "" {
				continue
			}
			if err := c.handle(data, componentLog); err != nil {
				metrics.ControlPlaneParseFailuresTotal.Inc()
				componentLog.Warn().Err(err).Msg("control-plane event parse failed")
				consecutiveFailures++
				if consecutiveFailures >= maxConsecutiveErrors {
					data = ""
					return fmt.Errorf("controlplane: %d consecutive parse failures", consecutiveFailures)
				}
			} else {
				consecutiveFailures = 0
			}
			data = ""
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("controlplane: stream read: %w", err)
	}
	return nil
}

// handle decodes one SSE data payload and dispatches it.
func (c *Client) handle(data string, componentLog zerolog.Logger) error {
	var cmd command
	if err := json.Unmarshal([]byte(data), &cmd); err != nil {
		return err
	}

	if cmd.NodeName != "" && cmd.NodeName != c.nodeName {
		return nil
	}

	switch cmd.Op {
	case "hello":
		componentLog.Debug().Msg("control-plane hello")
		return nil
	case "run":
		c.dispatch(cmd, true)
	case "stop":
		c.dispatch(cmd, false)
	default:
		return fmt.Errorf("controlplane: unknown op %q", cmd.Op)
	}
	return nil
}

func (c *Client) dispatch(cmd command, run bool) {
	if isKnownScheme(cmd.Output) {
		if err := c.mux.PreRegister(cmd.Output); err != nil {
			log.WithComponent("controlplane").Warn().Err(err).Str("output", cmd.Output).Msg("preregister failed")
		}
	}

	t := task.Task{
		Namespace:   cmd.NS,
		PodName:     cmd.PodName,
		ServiceName: cmd.ServiceName,
		Output:      cmd.Output,
		Filter:      taskFilter(cmd.Filter),
		NodeName:    cmd.NodeName,
		IPs:         cmd.IPs,
		Offset:      cmd.Offset,
	}

	if run {
		c.ctl.Run(t)
	} else {
		c.ctl.Stop(t)
	}
}

func taskFilter(f filter) container.Filter {
	return container.Filter{MaxLength: f.MaxLength, Expr: f.Expr}
}

func isKnownScheme(uri string) bool {
	for _, scheme := range []string{"fake:", "counter:", "kafka:"} {
		if strings.HasPrefix(uri, scheme) {
			return true
		}
	}
	return false
}

// Package mcpserver registers MCP tools that expose pipeline control:
// listing pipelines, queueing and stopping runs, and reading history and
// device state. It adapts the daemon's scheduler to the MCP SDK's tool
// handler interface.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alexjbarnes/adb-sync/internal/adb"
	"github.com/alexjbarnes/adb-sync/internal/config"
	"github.com/alexjbarnes/adb-sync/internal/engine"
	"github.com/alexjbarnes/adb-sync/internal/scheduler"
	"github.com/alexjbarnes/adb-sync/internal/state"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const defaultHistoryLimit = 20

// Queue is the scheduler surface the tools drive.
type Queue interface {
	Submit(req scheduler.Request, listener scheduler.Listener) (*scheduler.Ticket, error)
	Stop()
	Running() string
	Queued() []string
}

// History reads recorded runs.
type History interface {
	Runs(pipeline string, limit int) ([]state.Run, error)
}

// Devices lists attached devices and reports the current selection.
type Devices interface {
	Devices(ctx context.Context) ([]adb.Device, error)
	Serial() string
}

// Deps holds what the tools operate on. History may be nil.
type Deps struct {
	Queue     Queue
	History   History
	Devices   Devices
	Pipelines func() ([]config.Pipeline, error)
}

// RegisterTools adds all control tools to the given MCP server.
func RegisterTools(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "pipelines_list",
		Description: "List configured sync pipelines with direction, local and device roots, and whether they auto-sync.",
	}, listPipelinesHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pipeline_run",
		Description: "Queue a pipeline run. With wait=true the call returns after the run finishes and includes its counts.",
	}, runHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_stop",
		Description: "Stop the running pipeline before its next file copy. Copies already made are kept.",
	}, stopHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "sync_status",
		Description: "Show the selected device, the running pipeline and the queued pipelines.",
	}, statusHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "runs_history",
		Description: "List recent runs, newest first, optionally for one pipeline.",
	}, historyHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "devices_list",
		Description: "List attached devices and their adb state.",
	}, devicesHandler(d))
}

// --- Input types ---

// EmptyInput is used by tools without parameters.
type EmptyInput struct{}

// RunInput holds parameters for pipeline_run.
type RunInput struct {
	Name string `json:"name" jsonschema:"pipeline name"`
	Wait bool   `json:"wait,omitempty" jsonschema:"wait for the run to finish, defaults to false"`
}

// HistoryInput holds parameters for runs_history.
type HistoryInput struct {
	Pipeline string `json:"pipeline,omitempty" jsonschema:"only runs of this pipeline"`
	Limit    int    `json:"limit,omitempty" jsonschema:"maximum number of runs, defaults to 20"`
}

// --- Output types ---

// PipelineInfo describes one pipeline.
type PipelineInfo struct {
	Name      string `json:"name"`
	Direction string `json:"direction"`
	Local     string `json:"local"`
	Remote    string `json:"remote"`
	Serial    string `json:"serial,omitempty"`
	Policy    string `json:"policy,omitempty"`
	AutoSync  bool   `json:"auto_sync"`
	Enabled   bool   `json:"enabled"`
}

// PipelineList is the pipelines_list result.
type PipelineList struct {
	Pipelines []PipelineInfo `json:"pipelines"`
}

// StatsInfo mirrors engine.Stats for output.
type StatsInfo struct {
	Uploaded   int  `json:"uploaded"`
	Downloaded int  `json:"downloaded"`
	Skipped    int  `json:"skipped"`
	Errored    int  `json:"errored"`
	Operations int  `json:"operations"`
	Degraded   bool `json:"degraded,omitempty"`
	Cancelled  bool `json:"cancelled,omitempty"`
}

// RunResult is the pipeline_run result.
type RunResult struct {
	Pipeline string     `json:"pipeline"`
	Status   string     `json:"status"`
	Stats    *StatsInfo `json:"stats,omitempty"`
	Error    string     `json:"error,omitempty"`
}

// StopResult is the sync_stop result.
type StopResult struct {
	Stopped string `json:"stopped,omitempty"`
}

// StatusResult is the sync_status result.
type StatusResult struct {
	Device  string   `json:"device,omitempty"`
	Running string   `json:"running,omitempty"`
	Queued  []string `json:"queued"`
}

// RunInfo describes one recorded run. Times are RFC 3339.
type RunInfo struct {
	ID         string    `json:"id"`
	Pipeline   string    `json:"pipeline"`
	Trigger    string    `json:"trigger"`
	Serial     string    `json:"serial,omitempty"`
	StartedAt  string    `json:"started_at"`
	FinishedAt string    `json:"finished_at"`
	Stats      StatsInfo `json:"stats"`
	Error      string    `json:"error,omitempty"`
}

// HistoryResult is the runs_history result.
type HistoryResult struct {
	Runs []RunInfo `json:"runs"`
}

// DeviceInfo describes one attached device.
type DeviceInfo struct {
	Serial   string `json:"serial"`
	State    string `json:"state"`
	Selected bool   `json:"selected"`
}

// DevicesResult is the devices_list result.
type DevicesResult struct {
	Devices []DeviceInfo `json:"devices"`
}

// --- Handlers ---

func listPipelinesHandler(d Deps) mcp.ToolHandlerFor[EmptyInput, *PipelineList] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, *PipelineList, error) {
		pipelines, err := d.Pipelines()
		if err != nil {
			return nil, nil, err
		}

		result := &PipelineList{Pipelines: make([]PipelineInfo, 0, len(pipelines))}
		for _, p := range pipelines {
			result.Pipelines = append(result.Pipelines, PipelineInfo{
				Name:      p.Name,
				Direction: p.Direction,
				Local:     p.Local,
				Remote:    p.Remote,
				Serial:    p.Serial,
				Policy:    p.Policy,
				AutoSync:  p.AutoSync,
				Enabled:   p.IsEnabled(),
			})
		}

		return textResult(result), result, nil
	}
}

func runHandler(d Deps) mcp.ToolHandlerFor[RunInput, *RunResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input RunInput) (*mcp.CallToolResult, *RunResult, error) {
		pipelines, err := d.Pipelines()
		if err != nil {
			return nil, nil, err
		}

		if _, err := (&config.Pipelines{Pipelines: pipelines}).Find(input.Name); err != nil {
			return nil, nil, err
		}

		ticket, err := d.Queue.Submit(scheduler.Request{Pipeline: input.Name, Trigger: scheduler.TriggerMCP}, nil)
		if err != nil {
			return nil, nil, err
		}

		result := &RunResult{Pipeline: input.Name, Status: "queued"}

		if input.Wait {
			stats, err := ticket.Wait(ctx)
			if err != nil {
				result.Status = "failed"
				result.Error = err.Error()
			} else {
				result.Status = "done"
				result.Stats = statsInfo(stats)
			}
		}

		return textResult(result), result, nil
	}
}

func stopHandler(d Deps) mcp.ToolHandlerFor[EmptyInput, *StopResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, *StopResult, error) {
		result := &StopResult{Stopped: d.Queue.Running()}
		d.Queue.Stop()

		return textResult(result), result, nil
	}
}

func statusHandler(d Deps) mcp.ToolHandlerFor[EmptyInput, *StatusResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, *StatusResult, error) {
		result := &StatusResult{
			Device:  d.Devices.Serial(),
			Running: d.Queue.Running(),
			Queued:  d.Queue.Queued(),
		}

		return textResult(result), result, nil
	}
}

func historyHandler(d Deps) mcp.ToolHandlerFor[HistoryInput, *HistoryResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, *HistoryResult, error) {
		if d.History == nil {
			return nil, nil, fmt.Errorf("run history is not available")
		}

		limit := input.Limit
		if limit <= 0 {
			limit = defaultHistoryLimit
		}

		runs, err := d.History.Runs(input.Pipeline, limit)
		if err != nil {
			return nil, nil, err
		}

		result := &HistoryResult{Runs: make([]RunInfo, 0, len(runs))}
		for _, r := range runs {
			result.Runs = append(result.Runs, RunInfo{
				ID:         r.ID,
				Pipeline:   r.Pipeline,
				Trigger:    r.Trigger,
				Serial:     r.Serial,
				StartedAt:  r.StartedAt.Format(time.RFC3339),
				FinishedAt: r.FinishedAt.Format(time.RFC3339),
				Stats: StatsInfo{
					Uploaded:   r.Uploaded,
					Downloaded: r.Downloaded,
					Skipped:    r.Skipped,
					Errored:    r.Errored,
					Operations: r.Operations,
					Degraded:   r.Degraded,
					Cancelled:  r.Cancelled,
				},
				Error: r.Error,
			})
		}

		return textResult(result), result, nil
	}
}

func devicesHandler(d Deps) mcp.ToolHandlerFor[EmptyInput, *DevicesResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ EmptyInput) (*mcp.CallToolResult, *DevicesResult, error) {
		ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()

		devices, err := d.Devices.Devices(ctx)
		if err != nil {
			return nil, nil, err
		}

		selected := d.Devices.Serial()

		result := &DevicesResult{Devices: make([]DeviceInfo, 0, len(devices))}
		for _, dev := range devices {
			result.Devices = append(result.Devices, DeviceInfo{
				Serial:   dev.Serial,
				State:    dev.State,
				Selected: dev.Serial == selected,
			})
		}

		return textResult(result), result, nil
	}
}

func statsInfo(s engine.Stats) *StatsInfo {
	return &StatsInfo{
		Uploaded:   s.Uploaded,
		Downloaded: s.Downloaded,
		Skipped:    s.Skipped,
		Errored:    s.Errored,
		Operations: s.Operations,
		Degraded:   s.Degraded,
		Cancelled:  s.Cancelled,
	}
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/deltacov/pkg/delta"
	"github.com/Sumatoshi-tech/deltacov/pkg/history"
	"github.com/Sumatoshi-tech/deltacov/pkg/mcp"
	"github.com/Sumatoshi-tech/deltacov/pkg/observability"
	"github.com/Sumatoshi-tech/deltacov/pkg/pipeline"
	"github.com/Sumatoshi-tech/deltacov/pkg/report"
)

// recordingRun answers every check with a fixed outcome and keeps the options it saw.
type recordingRun struct {
	mu   sync.Mutex
	seen []pipeline.Options
	err  error
}

func (r *recordingRun) run(_ context.Context, opts pipeline.Options) (pipeline.Outcome, error) {
	r.mu.Lock()
	r.seen = append(r.seen, opts)
	r.mu.Unlock()

	if r.err != nil {
		return pipeline.Outcome{}, r.err
	}

	results := map[string]delta.FileResult{
		"src/a.cpp": {Relevant: 3, Covered: 2, UncoveredLines: []int{20}, ReportFound: true},
		"src/b.cpp": {Relevant: 2, UncoveredLines: []int{5, 6}},
	}
	aggregate := delta.Summarize(results)

	payload := report.NewPayload(report.Run{
		Range:     opts.Range,
		Threshold: opts.Threshold,
		Results:   results,
		Aggregate: aggregate,
	})

	return pipeline.Outcome{Payload: payload, Results: results, Aggregate: aggregate, Passed: payload.Passed}, nil
}

func (r *recordingRun) options(t *testing.T) pipeline.Options {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	require.Len(t, r.seen, 1)

	return r.seen[0]
}

func connect(t *testing.T, srv *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()

		cancel()
		<-serverDone
	})

	return session
}

func checkArgs(repo string) map[string]any {
	return map[string]any{
		"repo_path":  repo,
		"since":      "v1",
		"until":      "v2",
		"prefix":     "utcov.",
		"report_dir": "build/coverage",
		"threshold":  0.5,
	}
}

func textContent(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)

	return text.Text
}

func TestMCPServer_ToolsList(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(mcp.ServerDeps{})
	assert.Equal(t, []string{mcp.ToolNameCheck}, srv.ListToolNames())

	tools, err := connect(t, srv).ListTools(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, tools.Tools, 1)

	tool := tools.Tools[0]
	assert.Equal(t, "deltacov_check", tool.Name)
	assert.NotNil(t, tool.InputSchema)
	assert.NotNil(t, tool.OutputSchema)
}

func TestMCPServer_CallCheck(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	recorder := &recordingRun{}
	srv := mcp.NewServer(mcp.ServerDeps{Run: recorder.run})

	result, err := connect(t, srv).CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      mcp.ToolNameCheck,
		Arguments: checkArgs(repo),
	})
	require.NoError(t, err)
	require.False(t, result.IsError, textContent(t, result))

	var payload report.Payload
	require.NoError(t, json.Unmarshal([]byte(textContent(t, result)), &payload))
	assert.Equal(t, 5, payload.Changed)
	assert.Equal(t, 2, payload.Covered)
	assert.False(t, payload.Passed)
	require.Len(t, payload.Files, 2)

	opts := recorder.options(t)
	assert.Equal(t, repo, opts.RepoPath)
	assert.Equal(t, history.Range{Since: "v1", Until: "v2"}, opts.Range)
	assert.InDelta(t, 0.5, opts.Threshold, 1e-9)
	assert.Equal(t, pipeline.BackendLibgit2, opts.Backend)
	assert.Equal(t, repo+"/build/coverage", opts.Report.ReportDir)
	assert.Equal(t, "src/", opts.Report.Naming.MissingPrefix)
	assert.Equal(t, "utcov.", opts.Report.Naming.Prefix)
	assert.Equal(t, report.AnnotateUncovered, opts.Report.Annotate)
}

func TestMCPServer_CallCheckOverridesMissingPrefix(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()
	recorder := &recordingRun{}

	args := checkArgs(repo)
	args["missing_prefix"] = ""
	args["backend"] = "cli"
	delete(args, "report_dir")

	result, err := connect(t, mcp.NewServer(mcp.ServerDeps{Run: recorder.run})).CallTool(context.Background(),
		&mcpsdk.CallToolParams{Name: mcp.ToolNameCheck, Arguments: args})
	require.NoError(t, err)
	require.False(t, result.IsError)

	opts := recorder.options(t)
	assert.Empty(t, opts.Report.Naming.MissingPrefix)
	assert.Equal(t, pipeline.BackendCLI, opts.Backend)
	assert.Equal(t, repo, opts.Report.ReportDir)
}

func TestMCPServer_CallCheckInvalidInput(t *testing.T) {
	t.Parallel()

	repo := t.TempDir()

	tests := []struct {
		name   string
		mutate func(map[string]any)
		want   string
	}{
		{"relative repo", func(a map[string]any) { a["repo_path"] = "relative/repo" }, "absolute"},
		{"missing repo", func(a map[string]any) { a["repo_path"] = repo + "/nope" }, "does not exist"},
		{"missing since", func(a map[string]any) { a["since"] = "" }, "since"},
		{"option-like since", func(a map[string]any) { a["since"] = "--output=/tmp/x" }, "must not start with"},
		{"missing prefix", func(a map[string]any) { a["prefix"] = "" }, "prefix"},
		{"threshold", func(a map[string]any) { a["threshold"] = 3 }, "threshold"},
		{"backend", func(a map[string]any) { a["backend"] = "svn" }, "backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			recorder := &recordingRun{}
			args := checkArgs(repo)
			tt.mutate(args)

			result, err := connect(t, mcp.NewServer(mcp.ServerDeps{Run: recorder.run})).CallTool(context.Background(),
				&mcpsdk.CallToolParams{Name: mcp.ToolNameCheck, Arguments: args})
			require.NoError(t, err)
			assert.True(t, result.IsError)
			assert.Contains(t, textContent(t, result), tt.want)
			assert.Empty(t, recorder.seen)
		})
	}
}

func TestMCPServer_RunFailureIsToolError(t *testing.T) {
	t.Parallel()

	recorder := &recordingRun{err: errors.New("object not found")}

	result, err := connect(t, mcp.NewServer(mcp.ServerDeps{Run: recorder.run})).CallTool(context.Background(),
		&mcpsdk.CallToolParams{Name: mcp.ToolNameCheck, Arguments: checkArgs(t.TempDir())})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, textContent(t, result), "object not found")
}

func TestMCPServer_TracingAndMetrics(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	red, err := observability.NewREDMetrics(mp.Meter("test"))
	require.NoError(t, err)

	recorder := &recordingRun{}
	srv := mcp.NewServer(mcp.ServerDeps{
		Tracer:  tp.Tracer("test"),
		Metrics: red,
		Run:     recorder.run,
	})

	result, err := connect(t, srv).CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      mcp.ToolNameCheck,
		Arguments: checkArgs(t.TempDir()),
	})
	require.NoError(t, err)

	last, ok := result.Content[len(result.Content)-1].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(last.Text, "trace_id="))

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "mcp.deltacov_check", spans[0].Name)

	assert.NotNil(t, recorder.options(t).Tracer)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := false

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == "deltacov.requests.total" {
				found = true
			}
		}
	}

	assert.True(t, found)
}

func TestMCPServer_StreamableHTTP(t *testing.T) {
	t.Parallel()

	recorder := &recordingRun{}
	srv := mcp.NewServer(mcp.ServerDeps{Run: recorder.run})

	httpServer := httptest.NewServer(srv.HTTPHandler())
	t.Cleanup(httpServer.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)

	session, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: httpServer.URL}, nil)
	require.NoError(t, err)

	defer session.Close()

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      mcp.ToolNameCheck,
		Arguments: checkArgs(t.TempDir()),
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
}

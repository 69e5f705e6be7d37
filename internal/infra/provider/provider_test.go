package provider

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconflow/reconflow/internal/domain/scanning"
	"github.com/reconflow/reconflow/internal/infra/procregistry"
	"github.com/reconflow/reconflow/pkg/common/logger"
)

type stubToolConfig struct {
	paths map[string]string
	flags map[string][]string
}

func (c *stubToolConfig) ToolFlags(tool string) []string { return c.flags[tool] }
func (c *stubToolConfig) ToolPath(tool string) string    { return c.paths[tool] }

func testDeps(paths map[string]string) (Deps, *procregistry.Registry) {
	log := logger.New(io.Discard, logger.LevelError, "provider-test", nil)
	registry := procregistry.New(log)
	return Deps{
		Registry: registry,
		Tools:    &stubToolConfig{paths: paths},
		Logger:   log,
	}, registry
}

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func resultPayloads(events []scanning.StreamEvent) []any {
	var payloads []any
	for _, evt := range events {
		if evt.Kind == scanning.StreamResult {
			payloads = append(payloads, evt.Payload)
		}
	}
	return payloads
}

func TestSubfinderStreamsResults(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `
echo "a.example.com"
echo "b.example.com"
echo "progress notice"
`)
	deps, registry := testDeps(map[string]string{"subfinder": script})
	scanID := uuid.New()
	registry.RegisterScan(scanID)

	p := NewSubfinder(deps)
	events, err := Run(context.Background(), p, scanID, Job{Target: "example.com"})
	require.NoError(t, err)

	payloads := resultPayloads(events)
	require.Len(t, payloads, 2)
	assert.Equal(t, scanning.SubdomainFound{Hostname: "a.example.com"}, payloads[0])
	assert.Equal(t, scanning.SubdomainFound{Hostname: "b.example.com"}, payloads[1])

	// Each result is immediately followed by its companion log.
	for i, evt := range events {
		if evt.Kind == scanning.StreamResult {
			require.Greater(t, len(events), i+1)
			assert.Equal(t, scanning.StreamLog, events[i+1].Kind)
		}
	}

	// Lines not mentioning the target stay visible as logs.
	var sawNotice bool
	for _, evt := range events {
		if evt.Kind == scanning.StreamLog && evt.Line == "progress notice" {
			sawNotice = true
		}
	}
	assert.True(t, sawNotice)

	last := events[len(events)-1]
	assert.Equal(t, scanning.StreamLog, last.Kind)
	assert.Equal(t, "subfinder finished", last.Line)
}

func TestSubfinderAnchorsResultMatching(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `
echo "Enumerating subdomains for example.com"
echo "example.com"
echo "www.example.com"
echo "notexample.com"
`)
	deps, registry := testDeps(map[string]string{"subfinder": script})
	scanID := uuid.New()
	registry.RegisterScan(scanID)

	p := NewSubfinder(deps)
	events, err := Run(context.Background(), p, scanID, Job{Target: "example.com"})
	require.NoError(t, err)

	// The banner mentions the target but is not a hostname; notexample.com is
	// a different registrable domain despite the shared suffix text.
	payloads := resultPayloads(events)
	require.Len(t, payloads, 2)
	assert.Equal(t, scanning.SubdomainFound{Hostname: "example.com"}, payloads[0])
	assert.Equal(t, scanning.SubdomainFound{Hostname: "www.example.com"}, payloads[1])

	var sawBannerLog bool
	for _, evt := range events {
		if evt.Kind == scanning.StreamLog && evt.Line == "Enumerating subdomains for example.com" {
			sawBannerLog = true
		}
	}
	assert.True(t, sawBannerLog, "banner lines should stay visible as logs")
}

func TestHTTPXParsesJSONAndRawLines(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `
echo '{"url":"http://a.example.com","status_code":200,"title":"Home","tech":["nginx"]}'
echo 'garbage that is not json'
echo 'http://b.example.com'
`)
	deps, registry := testDeps(map[string]string{"httpx": script})
	scanID := uuid.New()
	registry.RegisterScan(scanID)

	p := NewHTTPX(deps)
	events, err := Run(context.Background(), p, scanID, Job{
		Target: "example.com",
		Inputs: []string{"a.example.com", "b.example.com"},
	})
	require.NoError(t, err)

	payloads := resultPayloads(events)
	require.Len(t, payloads, 2)
	assert.Equal(t, scanning.HostProbe{
		URL:        "http://a.example.com",
		StatusCode: 200,
		Title:      "Home",
		Tech:       []string{"nginx"},
	}, payloads[0])
	assert.Equal(t, scanning.HostProbe{URL: "http://b.example.com"}, payloads[1])

	var sawGarbageLog bool
	for _, evt := range events {
		if evt.Kind == scanning.StreamLog && evt.Line == "garbage that is not json" {
			sawGarbageLog = true
		}
	}
	assert.True(t, sawGarbageLog, "unparseable lines should downgrade to raw logs")
}

func TestNucleiMapsFindings(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `
echo '{"info":{"name":"Git Config","severity":"medium","description":"exposed git config"},"matched-at":"http://a.example.com/.git/config","host":"http://a.example.com","matcher-name":"git-config"}'
echo '{"info":{"severity":"info"},"host":"http://a.example.com"}'
echo '{"info":{"name":"Host Header Injection","severity":"low"},"host":"http://b.example.com"}'
`)
	deps, registry := testDeps(map[string]string{"nuclei": script})
	scanID := uuid.New()
	registry.RegisterScan(scanID)

	p := NewNuclei(deps)
	events, err := Run(context.Background(), p, scanID, Job{Inputs: []string{"http://a.example.com"}})
	require.NoError(t, err)

	payloads := resultPayloads(events)
	require.Len(t, payloads, 2, "rows without a finding name should not become results")

	assert.Equal(t, scanning.Finding{
		Name:        "Git Config",
		Severity:    "medium",
		MatchedAt:   "http://a.example.com/.git/config",
		Host:        "http://a.example.com",
		MatcherName: "git-config",
		Description: "exposed git config",
	}, payloads[0])

	// matched-at falls back to host when absent.
	second, ok := payloads[1].(scanning.Finding)
	require.True(t, ok)
	assert.Equal(t, "http://b.example.com", second.MatchedAt)
}

func TestKatanaDedupsBySignatureAndFiltersMedia(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `
echo "https://a.example.com/items?q=1"
echo "https://a.example.com/items?q=2"
echo "https://a.example.com/static/logo.png"
echo "https://a.example.com/login"
`)
	deps, registry := testDeps(map[string]string{"katana": script})
	scanID := uuid.New()
	registry.RegisterScan(scanID)

	p := NewKatana(deps)
	events, err := Run(context.Background(), p, scanID, Job{Target: "https://a.example.com"})
	require.NoError(t, err)

	payloads := resultPayloads(events)
	require.Len(t, payloads, 2)
	assert.Equal(t, scanning.CrawledEndpoint{URL: "https://a.example.com/items?q=1"}, payloads[0])
	assert.Equal(t, scanning.CrawledEndpoint{URL: "https://a.example.com/login"}, payloads[1])
}

func TestFFUFParsesHits(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `
echo '{"url":"https://a.example.com/admin","status":200,"length":1234,"input":{"FUZZ":"admin"}}'
`)
	deps, registry := testDeps(map[string]string{"ffuf": script})
	scanID := uuid.New()
	registry.RegisterScan(scanID)

	p := NewFFUF(deps)
	events, err := Run(context.Background(), p, scanID, Job{Target: "https://a.example.com"})
	require.NoError(t, err)

	payloads := resultPayloads(events)
	require.Len(t, payloads, 1)
	assert.Equal(t, scanning.FuzzHit{
		URL:           "https://a.example.com/admin",
		Status:        200,
		ContentLength: 1234,
		Word:          "admin",
	}, payloads[0])
}

func TestLaunchFailureEmitsErrorEvent(t *testing.T) {
	t.Parallel()

	deps, registry := testDeps(map[string]string{"subfinder": "/nonexistent/definitely-missing-bin"})
	scanID := uuid.New()
	registry.RegisterScan(scanID)

	p := NewSubfinder(deps)
	events, err := Run(context.Background(), p, scanID, Job{Target: "example.com"})
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, scanning.StreamError, events[0].Kind)
	assert.Contains(t, events[0].Line, "failed to launch")
}

func TestNonZeroExitSurfacesStderr(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `
echo "rate limit exceeded" >&2
exit 1
`)
	deps, registry := testDeps(map[string]string{"subfinder": script})
	scanID := uuid.New()
	registry.RegisterScan(scanID)

	p := NewSubfinder(deps)
	events, err := Run(context.Background(), p, scanID, Job{Target: "example.com"})
	require.NoError(t, err)

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, scanning.StreamError, last.Kind)
	assert.Contains(t, last.Line, "rate limit exceeded")
}

func TestCancellationTerminatesTool(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `sleep 30`)
	deps, registry := testDeps(map[string]string{"subfinder": script})
	scanID := uuid.New()
	registry.RegisterScan(scanID)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	p := NewSubfinder(deps)
	start := time.Now()
	events, err := Run(ctx, p, scanID, Job{Target: "example.com"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second, "cancellation should not wait for the tool")

	// The stream always closes with the terminal status event, even though the
	// context is already dead.
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, scanning.StreamStatus, last.Kind)
	assert.Equal(t, "cancelled", last.Line)
}

func TestUnregisteredScanTerminatesImmediately(t *testing.T) {
	t.Parallel()

	script := writeScript(t, `sleep 30`)
	deps, _ := testDeps(map[string]string{"subfinder": script})

	// Scan id never registered: simulates an add racing a completed cancel.
	p := NewSubfinder(deps)
	start := time.Now()
	events, err := Run(context.Background(), p, uuid.New(), Job{Target: "example.com"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)

	require.Len(t, events, 1)
	assert.Equal(t, scanning.StreamStatus, events[0].Kind)
	assert.Equal(t, "cancelled", events[0].Line)
}

func TestNewUsesStaticTable(t *testing.T) {
	t.Parallel()

	deps, _ := testDeps(nil)

	for _, name := range Names() {
		p, err := New(name, deps)
		require.NoError(t, err)
		assert.Equal(t, name, p.Name())
	}

	_, err := New("no-such-tool", deps)
	assert.Error(t, err)
}

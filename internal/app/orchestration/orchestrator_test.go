package orchestration

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconflow/reconflow/internal/domain/scanning"
	"github.com/reconflow/reconflow/internal/infra/procregistry"
	"github.com/reconflow/reconflow/internal/infra/ratelimit"
	assetmem "github.com/reconflow/reconflow/internal/infra/storage/asset/memory"
)

type stubToolConfig struct{ paths map[string]string }

func (c *stubToolConfig) ToolFlags(string) []string   { return nil }
func (c *stubToolConfig) ToolPath(tool string) string { return c.paths[tool] }

type broadcastRecorder struct {
	mu     sync.Mutex
	events []scanning.BroadcastEvent
}

func (r *broadcastRecorder) record(_ context.Context, evt scanning.BroadcastEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *broadcastRecorder) byType(t scanning.BroadcastType) []scanning.BroadcastEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []scanning.BroadcastEvent
	for _, evt := range r.events {
		if evt.Type == t {
			matched = append(matched, evt)
		}
	}
	return matched
}

func (r *broadcastRecorder) statusMessages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var msgs []string
	for _, evt := range r.events {
		if evt.Type == scanning.BroadcastStatus {
			msgs = append(msgs, evt.Message)
		}
	}
	return msgs
}

func writeTool(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name+".sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newTestOrchestrator(t *testing.T, paths map[string]string, rec *broadcastRecorder) (*Orchestrator, *assetmem.Store) {
	t.Helper()
	log := testLogger()
	store := assetmem.New()
	limiter := ratelimit.NewLimiter(ratelimit.NewMemoryStore(), log)

	cfg := Config{
		PhaseTimeout:   30 * time.Second,
		RateLimit:      100,
		RatePeriod:     time.Minute,
		PaceRPS:        1000,
		PaceBurst:      1000,
		SubdomainTools: []string{"subfinder"},
	}
	orch := NewOrchestrator(cfg, store, procregistry.New(log), limiter,
		&stubToolConfig{paths: paths}, rec.record, nil, log)
	return orch, store
}

func TestFullPipelinePersistsAndBroadcasts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	paths := map[string]string{
		"subfinder": writeTool(t, "subfinder", `
echo "a.example.com"
echo "b.example.com"
echo "a.example.com"
`),
		"httpx": writeTool(t, "httpx", `
echo '{"url":"http://a.example.com","status_code":200}'
`),
		"katana": writeTool(t, "katana", `
echo "http://a.example.com/login?user=1"
`),
		"gau": writeTool(t, "gau", `:`),
		"nuclei": writeTool(t, "nuclei", `
echo '{"info":{"name":"Git Config","severity":"medium"},"matched-at":"http://a.example.com/.git/config","matcher-name":"git-config"}'
echo '{"info":{"name":"Git Config","severity":"medium"},"matched-at":"http://a.example.com/.git/config","matcher-name":"git-config"}'
`),
	}

	rec := &broadcastRecorder{}
	orch, store := newTestOrchestrator(t, paths, rec)

	_, err := orch.StartScan(ctx, "example.com", false)
	require.NoError(t, err)
	orch.Wait()

	// Root seed plus the two distinct discoveries; the repeat adds nothing.
	subdomains, err := store.SubdomainsForTarget(ctx, "example.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"example.com", "a.example.com", "b.example.com"}, subdomains)

	subdomainEvents := rec.byType(scanning.BroadcastSubdomain)
	require.Len(t, subdomainEvents, 3)
	var newCount int
	for _, evt := range subdomainEvents {
		if evt.IsNew {
			newCount++
		}
	}
	assert.Equal(t, 2, newCount, "only first sightings are new")

	alive, err := store.AliveSubdomainsForTarget(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example.com"}, alive)

	urls, err := store.CrawledURLsForTarget(ctx, "example.com")
	require.NoError(t, err)
	require.Equal(t, []string{"http://a.example.com/login?user=1"}, urls)

	crawlEvents := rec.byType(scanning.BroadcastCrawl)
	require.Len(t, crawlEvents, 1)
	assert.Equal(t, []string{"login", "sqli"}, crawlEvents[0].Tags)

	vulns, err := store.VulnerabilitiesForTarget(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, vulns, 1, "re-emitting an identical finding must not create a second row")
	assert.Equal(t, "Git Config", vulns[0].Name)

	vulnEvents := rec.byType(scanning.BroadcastVuln)
	require.Len(t, vulnEvents, 2)
	assert.True(t, vulnEvents[0].IsNew)
	assert.False(t, vulnEvents[1].IsNew)

	msgs := rec.statusMessages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "complete", msgs[len(msgs)-1], "a scan ends with exactly one terminating status event")
}

func TestQuickScanSkipsCrawling(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	paths := map[string]string{
		"subfinder": writeTool(t, "subfinder", `echo "a.example.com"`),
		"httpx": writeTool(t, "httpx", `
echo '{"url":"http://a.example.com","status_code":200}'
`),
		"nuclei": writeTool(t, "nuclei", `:`),
	}

	rec := &broadcastRecorder{}
	orch, store := newTestOrchestrator(t, paths, rec)

	_, err := orch.StartScan(ctx, "example.com", true)
	require.NoError(t, err)
	orch.Wait()

	for _, msg := range rec.statusMessages() {
		assert.NotContains(t, msg, string(scanning.PhaseCrawling))
	}
	assert.Empty(t, rec.byType(scanning.BroadcastCrawl))

	urls, err := store.CrawledURLsForTarget(ctx, "example.com")
	require.NoError(t, err)
	assert.Empty(t, urls)

	msgs := rec.statusMessages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "complete", msgs[len(msgs)-1])
}

func TestCancelScanTerminatesPipeline(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	paths := map[string]string{
		"subfinder": writeTool(t, "subfinder", `sleep 30`),
	}

	rec := &broadcastRecorder{}
	orch, _ := newTestOrchestrator(t, paths, rec)

	scanID, err := orch.StartScan(ctx, "example.com", false)
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	start := time.Now()
	assert.True(t, orch.CancelScan(ctx, scanID))

	orch.Wait()
	assert.Less(t, time.Since(start), 10*time.Second, "cancellation should not wait for the tool")

	msgs := rec.statusMessages()
	require.NotEmpty(t, msgs)
	assert.Equal(t, "cancelled", msgs[len(msgs)-1])

	assert.False(t, orch.CancelScan(ctx, scanID), "second cancel finds no live scan")
}

func TestStartScanRequiresTarget(t *testing.T) {
	t.Parallel()

	rec := &broadcastRecorder{}
	orch, _ := newTestOrchestrator(t, nil, rec)

	_, err := orch.StartScan(context.Background(), "", false)
	assert.Error(t, err)
}

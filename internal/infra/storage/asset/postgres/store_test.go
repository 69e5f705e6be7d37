package postgres

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconflow/reconflow/internal/domain/asset"
	"github.com/reconflow/reconflow/internal/infra/storage"
)

func TestAssetStore_SubdomainLifecycle(t *testing.T) {
	t.Parallel()
	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAssetStore(pool, storage.NoOpTracer())

	inserted, err := store.AddSubdomain(ctx, "example.com", "a.example.com", "subfinder")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.AddSubdomain(ctx, "example.com", "a.example.com", "assetfinder")
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate hostname should report not inserted")

	inserted, err = store.AddSubdomain(ctx, "example.com", "b.example.com", "subfinder")
	require.NoError(t, err)
	assert.True(t, inserted)

	hostnames, err := store.SubdomainsForTarget(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, hostnames)

	// No subdomain is alive until a probe confirms it.
	alive, err := store.AliveSubdomainsForTarget(ctx, "example.com")
	require.NoError(t, err)
	assert.Empty(t, alive)

	updated, err := store.UpdateSubdomainAlive(ctx, "https://a.example.com/path", true)
	require.NoError(t, err)
	assert.True(t, updated)

	alive, err = store.AliveSubdomainsForTarget(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example.com"}, alive)

	updated, err = store.UpdateSubdomainAlive(ctx, "unknown.example.com", true)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestAssetStore_AddSubdomainConcurrentExactlyOne(t *testing.T) {
	t.Parallel()
	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAssetStore(pool, storage.NoOpTracer())

	const workers = 16
	var wg sync.WaitGroup
	var insertedCount atomic.Int64

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inserted, err := store.AddSubdomain(ctx, "example.com", "race.example.com", "subfinder")
			assert.NoError(t, err)
			if inserted {
				insertedCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), insertedCount.Load(), "exactly one concurrent insert should win")

	hostnames, err := store.SubdomainsForTarget(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"race.example.com"}, hostnames)
}

func TestAssetStore_CrawledURLs(t *testing.T) {
	t.Parallel()
	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAssetStore(pool, storage.NoOpTracer())

	inserted, err := store.AddCrawledURL(ctx, "example.com", "https://a.example.com/login?user=1", "katana", []string{"sqli", "xss"})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.AddCrawledURL(ctx, "example.com", "https://a.example.com/login?user=1", "gau", nil)
	require.NoError(t, err)
	assert.False(t, inserted)

	inserted, err = store.AddCrawledURL(ctx, "example.com", "https://a.example.com/static/app.js", "gau", nil)
	require.NoError(t, err)
	assert.True(t, inserted)

	urls, err := store.CrawledURLsForTarget(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://a.example.com/login?user=1",
		"https://a.example.com/static/app.js",
	}, urls)
}

func TestAssetStore_Vulnerabilities(t *testing.T) {
	t.Parallel()
	pool, cleanup := storage.SetupTestContainer(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAssetStore(pool, storage.NoOpTracer())

	vuln := asset.Vulnerability{
		TargetDomain: "example.com",
		Name:         "Git Config Disclosure",
		Severity:     asset.SeverityMedium,
		URL:          "https://a.example.com/.git/config",
		MatcherName:  "git-config",
		Description:  "exposed git configuration",
	}

	inserted, err := store.AddVulnerability(ctx, vuln)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.AddVulnerability(ctx, vuln)
	require.NoError(t, err)
	assert.False(t, inserted, "same natural key should report not inserted")

	vuln.URL = "https://b.example.com/.git/config"
	inserted, err = store.AddVulnerability(ctx, vuln)
	require.NoError(t, err)
	assert.True(t, inserted)

	vulns, err := store.VulnerabilitiesForTarget(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, vulns, 2)
	assert.Equal(t, "Git Config Disclosure", vulns[0].Name)
	assert.Equal(t, asset.SeverityMedium, vulns[0].Severity)
	assert.Equal(t, "git-config", vulns[0].MatcherName)
	assert.Equal(t, "exposed git configuration", vulns[0].Description)
	assert.False(t, vulns[0].DiscoveredAt.IsZero())
}

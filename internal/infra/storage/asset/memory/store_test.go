package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconflow/reconflow/internal/domain/asset"
)

func TestStore_AddSubdomainDedup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	inserted, err := store.AddSubdomain(ctx, "example.com", "a.example.com", "subfinder")
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.AddSubdomain(ctx, "example.com", "a.example.com", "assetfinder")
	require.NoError(t, err)
	assert.False(t, inserted, "duplicate hostname should not insert")

	hostnames, err := store.SubdomainsForTarget(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example.com"}, hostnames)
}

func TestStore_AddSubdomainConcurrentExactlyOne(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	const workers = 32
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
}

func TestStore_UpdateSubdomainAliveNormalizesInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	_, err := store.AddSubdomain(ctx, "foo.bar", "foo.bar", "seed")
	require.NoError(t, err)

	updated, err := store.UpdateSubdomainAlive(ctx, "https://foo.bar/x", true)
	require.NoError(t, err)
	assert.True(t, updated)

	alive, err := store.AliveSubdomainsForTarget(ctx, "foo.bar")
	require.NoError(t, err)
	assert.Equal(t, []string{"foo.bar"}, alive)

	// A bare hostname addresses the same row as a URL.
	updated, err = store.UpdateSubdomainAlive(ctx, "foo.bar", true)
	require.NoError(t, err)
	assert.True(t, updated)

	alive, err = store.AliveSubdomainsForTarget(ctx, "foo.bar")
	require.NoError(t, err)
	assert.Equal(t, []string{"foo.bar"}, alive)
}

func TestStore_UpdateSubdomainAliveUnknownHost(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	updated, err := store.UpdateSubdomainAlive(ctx, "nobody.example.com", true)
	require.NoError(t, err)
	assert.False(t, updated)
}

func TestStore_PersistAndRetrieveSubdomains(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	want := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		hostname := fmt.Sprintf("h%d.example.com", i)
		want = append(want, hostname)
		inserted, err := store.AddSubdomain(ctx, "example.com", hostname, "subfinder")
		require.NoError(t, err)
		require.True(t, inserted)
	}

	got, err := store.SubdomainsForTarget(ctx, "example.com")
	require.NoError(t, err)
	assert.ElementsMatch(t, want, got)
}

func TestStore_AddCrawledURLDedup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

	inserted, err := store.AddCrawledURL(ctx, "example.com", "https://a.example.com/login?user=1", "katana", []string{"sqli"})
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.AddCrawledURL(ctx, "example.com", "https://a.example.com/login?user=1", "gau", nil)
	require.NoError(t, err)
	assert.False(t, inserted)

	urls, err := store.CrawledURLsForTarget(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example.com/login?user=1"}, urls)
}

func TestStore_AddVulnerabilityNaturalKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := New()

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
	assert.False(t, inserted, "same natural key should not insert twice")

	// Same name on a different URL is a distinct finding.
	vuln.URL = "https://b.example.com/.git/config"
	inserted, err = store.AddVulnerability(ctx, vuln)
	require.NoError(t, err)
	assert.True(t, inserted)

	vulns, err := store.VulnerabilitiesForTarget(ctx, "example.com")
	require.NoError(t, err)
	require.Len(t, vulns, 2)
	assert.Equal(t, "Git Config Disclosure", vulns[0].Name)
}

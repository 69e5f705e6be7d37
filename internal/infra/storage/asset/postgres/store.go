// Package postgres implements the asset repository on PostgreSQL. Natural-key
// uniqueness is enforced by the schema, so concurrent duplicate inserts are
// resolved at the storage layer and reported as a false return, never an error.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reconflow/reconflow/internal/domain/asset"
	"github.com/reconflow/reconflow/internal/infra/storage"
)

var defaultDBAttributes = []attribute.KeyValue{attribute.String("db.system", "postgresql")}

var _ asset.Repository = (*assetStore)(nil)

// assetStore implements the asset.Repository interface using PostgreSQL.
type assetStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

// NewAssetStore creates a new PostgreSQL-backed asset repository with tracing.
func NewAssetStore(pool *pgxpool.Pool, tracer trace.Tracer) *assetStore {
	return &assetStore{db: pool, tracer: tracer}
}

// AddSubdomain persists a discovered hostname. The existence check avoids the
// write in the common duplicate case; the ON CONFLICT clause absorbs the race
// where a concurrent insert lands between the check and the write.
func (r *assetStore) AddSubdomain(ctx context.Context, targetDomain, hostname, sourceTool string) (bool, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("target_domain", targetDomain),
		attribute.String("hostname", hostname),
	)

	var inserted bool
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.add_subdomain", dbAttrs, func(ctx context.Context) error {
		var exists bool
		err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM subdomains WHERE hostname = $1)`, hostname,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check subdomain existence: %w", err)
		}
		if exists {
			return nil
		}

		tag, err := r.db.Exec(ctx, `
			INSERT INTO subdomains (target_domain, hostname, source_tool)
			VALUES ($1, $2, $3)
			ON CONFLICT (hostname) DO NOTHING`,
			targetDomain, hostname, sourceTool,
		)
		if err != nil {
			return fmt.Errorf("failed to insert subdomain: %w", err)
		}
		inserted = tag.RowsAffected() > 0
		return nil
	})
	return inserted, err
}

// UpdateSubdomainAlive marks the subdomain matching hostOrURL as alive. The
// input is normalized to a bare hostname first, so URL and hostname callers
// produce identical state.
func (r *assetStore) UpdateSubdomainAlive(ctx context.Context, hostOrURL string, alive bool) (bool, error) {
	hostname := asset.NormalizeHostname(hostOrURL)
	dbAttrs := append(defaultDBAttributes, attribute.String("hostname", hostname))

	var updated bool
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.update_subdomain_alive", dbAttrs, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx,
			`UPDATE subdomains SET is_alive = $2 WHERE hostname = $1`, hostname, alive,
		)
		if err != nil {
			return fmt.Errorf("failed to update subdomain alive flag: %w", err)
		}
		updated = tag.RowsAffected() > 0
		return nil
	})
	return updated, err
}

// SubdomainsForTarget returns the hostnames recorded for a target domain.
func (r *assetStore) SubdomainsForTarget(ctx context.Context, targetDomain string) ([]string, error) {
	return r.queryStrings(ctx, "postgres.subdomains_for_target", targetDomain,
		`SELECT hostname FROM subdomains WHERE target_domain = $1 ORDER BY id`)
}

// AliveSubdomainsForTarget returns the hostnames marked alive for a target domain.
func (r *assetStore) AliveSubdomainsForTarget(ctx context.Context, targetDomain string) ([]string, error) {
	return r.queryStrings(ctx, "postgres.alive_subdomains_for_target", targetDomain,
		`SELECT hostname FROM subdomains WHERE target_domain = $1 AND is_alive ORDER BY id`)
}

// AddCrawledURL persists a discovered URL with its classification tags.
func (r *assetStore) AddCrawledURL(ctx context.Context, targetDomain, url, sourceTool string, tags []string) (bool, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("target_domain", targetDomain),
		attribute.String("url", url),
	)

	if tags == nil {
		tags = []string{}
	}

	var inserted bool
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.add_crawled_url", dbAttrs, func(ctx context.Context) error {
		var exists bool
		err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM crawled_urls WHERE url = $1)`, url,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check crawled url existence: %w", err)
		}
		if exists {
			return nil
		}

		tag, err := r.db.Exec(ctx, `
			INSERT INTO crawled_urls (target_domain, url, source_tool, tags)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (url) DO NOTHING`,
			targetDomain, url, sourceTool, tags,
		)
		if err != nil {
			return fmt.Errorf("failed to insert crawled url: %w", err)
		}
		inserted = tag.RowsAffected() > 0
		return nil
	})
	return inserted, err
}

// CrawledURLsForTarget returns the URLs recorded for a target domain.
func (r *assetStore) CrawledURLsForTarget(ctx context.Context, targetDomain string) ([]string, error) {
	return r.queryStrings(ctx, "postgres.crawled_urls_for_target", targetDomain,
		`SELECT url FROM crawled_urls WHERE target_domain = $1 ORDER BY id`)
}

// AddVulnerability persists a scanner finding, unique by
// (target_domain, name, url, matcher_name).
func (r *assetStore) AddVulnerability(ctx context.Context, vuln asset.Vulnerability) (bool, error) {
	dbAttrs := append(
		defaultDBAttributes,
		attribute.String("target_domain", vuln.TargetDomain),
		attribute.String("vuln_name", vuln.Name),
	)

	var inserted bool
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.add_vulnerability", dbAttrs, func(ctx context.Context) error {
		var exists bool
		err := r.db.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM vulnerabilities
				WHERE target_domain = $1 AND name = $2 AND url = $3 AND matcher_name = $4
			)`,
			vuln.TargetDomain, vuln.Name, vuln.URL, vuln.MatcherName,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check vulnerability existence: %w", err)
		}
		if exists {
			return nil
		}

		tag, err := r.db.Exec(ctx, `
			INSERT INTO vulnerabilities (target_domain, name, severity, url, matcher_name, description)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (target_domain, name, url, matcher_name) DO NOTHING`,
			vuln.TargetDomain, vuln.Name, string(vuln.Severity), vuln.URL, vuln.MatcherName, vuln.Description,
		)
		if err != nil {
			return fmt.Errorf("failed to insert vulnerability: %w", err)
		}
		inserted = tag.RowsAffected() > 0
		return nil
	})
	return inserted, err
}

// VulnerabilitiesForTarget returns the findings recorded for a target domain.
func (r *assetStore) VulnerabilitiesForTarget(ctx context.Context, targetDomain string) ([]asset.Vulnerability, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("target_domain", targetDomain))

	var vulns []asset.Vulnerability
	err := storage.ExecuteAndTrace(ctx, r.tracer, "postgres.vulnerabilities_for_target", dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, `
			SELECT target_domain, name, severity, url, matcher_name, COALESCE(description, ''), discovered_at
			FROM vulnerabilities WHERE target_domain = $1 ORDER BY id`,
			targetDomain,
		)
		if err != nil {
			return fmt.Errorf("failed to query vulnerabilities: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var v asset.Vulnerability
			var severity string
			if err := rows.Scan(&v.TargetDomain, &v.Name, &severity, &v.URL, &v.MatcherName, &v.Description, &v.DiscoveredAt); err != nil {
				return fmt.Errorf("failed to scan vulnerability row: %w", err)
			}
			v.Severity = asset.Severity(severity)
			vulns = append(vulns, v)
		}
		return rows.Err()
	})
	return vulns, err
}

func (r *assetStore) queryStrings(ctx context.Context, spanName, targetDomain, query string) ([]string, error) {
	dbAttrs := append(defaultDBAttributes, attribute.String("target_domain", targetDomain))

	var values []string
	err := storage.ExecuteAndTrace(ctx, r.tracer, spanName, dbAttrs, func(ctx context.Context) error {
		rows, err := r.db.Query(ctx, query, targetDomain)
		if err != nil {
			return fmt.Errorf("failed to query rows: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err != nil {
				return fmt.Errorf("failed to scan row: %w", err)
			}
			values = append(values, v)
		}
		return rows.Err()
	})
	return values, err
}

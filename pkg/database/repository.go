package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/iff-guardian/fusion/internal/domain"
)

// Repository implements the persistent store: CRUD on integrations,
// append-only ingestion of normalized events, and the read paths the
// Posture Aggregator and Correlation Engine need.
type Repository struct {
	db *DB
}

// NewRepository wraps db in a Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshalInto(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}

// CreateIntegration inserts a new integration row.
func (r *Repository) CreateIntegration(ctx context.Context, in *domain.Integration) error {
	conn, err := marshal(in.ConnectionConfig)
	if err != nil {
		return fmt.Errorf("marshal connection config: %w", err)
	}
	policy, err := marshal(in.SyncPolicy)
	if err != nil {
		return fmt.Errorf("marshal sync policy: %w", err)
	}
	fields, err := marshal(in.FieldMappings)
	if err != nil {
		return fmt.Errorf("marshal field mappings: %w", err)
	}
	sevMap, err := marshal(in.SeverityMapping)
	if err != nil {
		return fmt.Errorf("marshal severity mapping: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO integrations
			(id, name, type, platform, connection_config, sync_policy, field_mappings,
			 severity_mapping, features, status, created_at, updated_at, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		in.ID, in.Name, in.Type, in.Platform, conn, policy, fields, sevMap,
		in.Features, in.Status, in.CreatedAt, in.UpdatedAt, in.Version,
	)
	return err
}

// GetIntegration loads one integration by id.
func (r *Repository) GetIntegration(ctx context.Context, id string) (*domain.Integration, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, type, platform, connection_config, sync_policy, field_mappings,
		       severity_mapping, features, status, last_connected, last_sync, created_at,
		       updated_at, version
		FROM integrations WHERE id = $1`, id)
	return scanIntegration(row)
}

// ListIntegrations returns every registered integration, newest first.
func (r *Repository) ListIntegrations(ctx context.Context) ([]*domain.Integration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, type, platform, connection_config, sync_policy, field_mappings,
		       severity_mapping, features, status, last_connected, last_sync, created_at,
		       updated_at, version
		FROM integrations ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Integration
	for rows.Next() {
		in, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntegration(row rowScanner) (*domain.Integration, error) {
	var in domain.Integration
	var conn, policy, fields, sevMap []byte
	err := row.Scan(&in.ID, &in.Name, &in.Type, &in.Platform, &conn, &policy, &fields,
		&sevMap, &in.Features, &in.Status, &in.LastConnected, &in.LastSync,
		&in.CreatedAt, &in.UpdatedAt, &in.Version)
	if err != nil {
		return nil, err
	}
	if err := unmarshalInto(conn, &in.ConnectionConfig); err != nil {
		return nil, err
	}
	if err := unmarshalInto(policy, &in.SyncPolicy); err != nil {
		return nil, err
	}
	if err := unmarshalInto(fields, &in.FieldMappings); err != nil {
		return nil, err
	}
	if err := unmarshalInto(sevMap, &in.SeverityMapping); err != nil {
		return nil, err
	}
	return &in, nil
}

// UpdateIntegrationStatus updates status and, when connecting
// succeeded, lastConnected.
func (r *Repository) UpdateIntegrationStatus(ctx context.Context, id string, status domain.IntegrationStatus, connectedAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE integrations SET status = $2, last_connected = COALESCE($3, last_connected),
		       updated_at = now(), version = version + 1
		WHERE id = $1`, id, status, connectedAt)
	return err
}

// UpdateIntegrationLastSync records the completion time of a sync run.
func (r *Repository) UpdateIntegrationLastSync(ctx context.Context, id string, syncedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE integrations SET last_sync = $2, updated_at = now(), version = version + 1
		WHERE id = $1`, id, syncedAt)
	return err
}

// DeleteIntegration removes an integration and its dependent rows.
func (r *Repository) DeleteIntegration(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM integrations WHERE id = $1`, id)
	return err
}

// InsertSecurityEvent appends one normalized event.
func (r *Repository) InsertSecurityEvent(ctx context.Context, e *domain.NormalizedEvent) error {
	tags, err := marshal(e.Tags)
	if err != nil {
		return err
	}
	raw, err := marshal(e.RawPayload)
	if err != nil {
		return err
	}
	extra, err := marshal(e.Extra)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO security_events
			(id, timestamp, source_type, source_integration_id, event_type, severity, title,
			 description, category, subcategory, source_ip, dest_ip, "user", host, protocol,
			 tags, raw_payload, extra, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`,
		e.ID, e.Timestamp, e.SourceType, e.SourceIntegrationID, e.EventType, e.Severity, e.Title,
		e.Description, e.Category, e.Subcategory, e.SourceIP, e.DestIP, e.User, e.Host, e.Protocol,
		tags, raw, extra, e.Status,
	)
	return err
}

// ListSecurityEventsInWindow returns every event whose timestamp falls
// in [start, end), ordered oldest first. This backs the Event Buffer's
// read-through cache miss path.
func (r *Repository) ListSecurityEventsInWindow(ctx context.Context, start, end time.Time) ([]*domain.NormalizedEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, source_type, source_integration_id, event_type, severity, title,
		       description, category, subcategory, source_ip, dest_ip, "user", host, protocol,
		       tags, raw_payload, extra, status
		FROM security_events
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp ASC`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.NormalizedEvent
	for rows.Next() {
		var e domain.NormalizedEvent
		var tags, raw, extra []byte
		var subcategory, sourceIP, destIP, user, host, protocol sql.NullString
		err := rows.Scan(&e.ID, &e.Timestamp, &e.SourceType, &e.SourceIntegrationID, &e.EventType,
			&e.Severity, &e.Title, &e.Description, &e.Category, &subcategory, &sourceIP, &destIP,
			&user, &host, &protocol, &tags, &raw, &extra, &e.Status)
		if err != nil {
			return nil, err
		}
		e.Subcategory = subcategory.String
		e.SourceIP = sourceIP.String
		e.DestIP = destIP.String
		e.User = user.String
		e.Host = host.String
		e.Protocol = protocol.String
		if err := unmarshalInto(tags, &e.Tags); err != nil {
			return nil, err
		}
		if err := unmarshalInto(raw, &e.RawPayload); err != nil {
			return nil, err
		}
		if err := unmarshalInto(extra, &e.Extra); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// CreateThreat persists a newly synthesized unified threat.
func (r *Repository) CreateThreat(ctx context.Context, t *domain.UnifiedThreat) error {
	sources, err := marshal(t.Sources)
	if err != nil {
		return err
	}
	assets, err := marshal(t.AffectedAssets)
	if err != nil {
		return err
	}
	users, err := marshal(t.AffectedUsers)
	if err != nil {
		return err
	}
	evidence, err := marshal(t.Evidence)
	if err != nil {
		return err
	}
	factors, err := marshal(t.RiskFactors)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO unified_threats
			(id, correlation_id, title, description, severity, confidence, sources, first_seen,
			 last_seen, event_count, affected_assets, affected_users, status, evidence,
			 risk_score, risk_factors, dedup_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		t.ID, t.CorrelationID, t.Title, t.Description, t.Severity, t.Confidence, sources,
		t.FirstSeen, t.LastSeen, t.EventCount, assets, users, t.Status, evidence, t.RiskScore, factors,
		t.DedupKey,
	)
	return err
}

// FindThreatByDedupKey looks up a persisted threat by its
// deduplication key, so a later correlation tick can merge into it
// instead of inserting a duplicate row for the same collapsed
// identity. Returns (nil, nil) when no row matches, following the
// repo's not-found-is-nil convention for lookups the caller treats as
// optional.
func (r *Repository) FindThreatByDedupKey(ctx context.Context, key string) (*domain.UnifiedThreat, error) {
	if key == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT id, correlation_id, title, description, severity, confidence, sources, first_seen,
		       last_seen, event_count, affected_assets, affected_users, status, evidence,
		       risk_score, risk_factors, dedup_key
		FROM unified_threats WHERE dedup_key = $1 ORDER BY created_at DESC LIMIT 1`, key)
	t, err := scanThreat(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func scanThreat(row rowScanner) (*domain.UnifiedThreat, error) {
	var t domain.UnifiedThreat
	var sources, assets, users, evidence, factors []byte
	err := row.Scan(&t.ID, &t.CorrelationID, &t.Title, &t.Description, &t.Severity,
		&t.Confidence, &sources, &t.FirstSeen, &t.LastSeen, &t.EventCount, &assets, &users,
		&t.Status, &evidence, &t.RiskScore, &factors, &t.DedupKey)
	if err != nil {
		return nil, err
	}
	if err := unmarshalInto(sources, &t.Sources); err != nil {
		return nil, err
	}
	if err := unmarshalInto(assets, &t.AffectedAssets); err != nil {
		return nil, err
	}
	if err := unmarshalInto(users, &t.AffectedUsers); err != nil {
		return nil, err
	}
	if err := unmarshalInto(evidence, &t.Evidence); err != nil {
		return nil, err
	}
	if err := unmarshalInto(factors, &t.RiskFactors); err != nil {
		return nil, err
	}
	return &t, nil
}

// MergeThreat writes back a threat already merged in memory (via the
// correlation engine's dedup logic) against an existing row: its
// eventCount, sources, confidence and lastSeen only, since those are
// the fields cross-tick dedup accumulates.
func (r *Repository) MergeThreat(ctx context.Context, t *domain.UnifiedThreat) error {
	sources, err := marshal(t.Sources)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		UPDATE unified_threats
		SET event_count = $2, sources = $3, confidence = $4, last_seen = $5
		WHERE id = $1`,
		t.ID, t.EventCount, sources, t.Confidence, t.LastSeen,
	)
	return err
}

// TopThreatsByRisk returns up to limit threats ordered by risk score
// descending, for the Posture Aggregator's top-threats view.
func (r *Repository) TopThreatsByRisk(ctx context.Context, limit int) ([]*domain.UnifiedThreat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, correlation_id, title, description, severity, confidence, sources, first_seen,
		       last_seen, event_count, affected_assets, affected_users, status, evidence,
		       risk_score, risk_factors, dedup_key
		FROM unified_threats ORDER BY risk_score DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanThreats(rows)
}

// RecentThreats returns up to limit threats ordered by creation time
// descending.
func (r *Repository) RecentThreats(ctx context.Context, limit int) ([]*domain.UnifiedThreat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, correlation_id, title, description, severity, confidence, sources, first_seen,
		       last_seen, event_count, affected_assets, affected_users, status, evidence,
		       risk_score, risk_factors, dedup_key
		FROM unified_threats ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanThreats(rows)
}

func scanThreats(rows *sql.Rows) ([]*domain.UnifiedThreat, error) {
	var out []*domain.UnifiedThreat
	for rows.Next() {
		t, err := scanThreat(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ThreatCountByDay returns the count of threats created per day over
// the last `days` days, keyed by ISO-8601 date, for the Posture
// Aggregator's trend histogram.
func (r *Repository) ThreatCountByDay(ctx context.Context, days int) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(created_at, 'YYYY-MM-DD') AS day, count(*)
		FROM unified_threats
		WHERE created_at >= now() - ($1 || ' days')::interval
		GROUP BY day`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var day string
		var n int
		if err := rows.Scan(&day, &n); err != nil {
			return nil, err
		}
		out[day] = n
	}
	return out, rows.Err()
}

// ThreatDailyStats returns per-day threat count and average risk score
// over the last `days` days, keyed by ISO-8601 date, for the Posture
// Aggregator's trend histogram.
func (r *Repository) ThreatDailyStats(ctx context.Context, days int) (map[string]DailyStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(created_at, 'YYYY-MM-DD') AS day, count(*), avg(risk_score)
		FROM unified_threats
		WHERE created_at >= now() - ($1 || ' days')::interval
		GROUP BY day`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDailyStats(rows)
}

// VulnerabilityDailyStats returns per-day vulnerability count and
// average CVSS score over the last `days` days, keyed by ISO-8601
// date.
func (r *Repository) VulnerabilityDailyStats(ctx context.Context, days int) (map[string]DailyStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT to_char(first_seen, 'YYYY-MM-DD') AS day, count(*), avg(cvss_score)
		FROM vulnerabilities
		WHERE first_seen >= now() - ($1 || ' days')::interval
		GROUP BY day`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanDailyStats(rows)
}

// DailyStat is one day's bucket in a trend histogram.
type DailyStat struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

func scanDailyStats(rows *sql.Rows) (map[string]DailyStat, error) {
	out := make(map[string]DailyStat)
	for rows.Next() {
		var day string
		var stat DailyStat
		if err := rows.Scan(&day, &stat.Count, &stat.Average); err != nil {
			return nil, err
		}
		out[day] = stat
	}
	return out, rows.Err()
}

// UpdateThreat applies a partial field update to an existing unified
// threat, used by the update-threat rule action. Unset keys in fields
// are left unchanged.
func (r *Repository) UpdateThreat(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	setClauses := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields)+1)
	args = append(args, id)
	i := 2
	for _, col := range []string{"status", "severity", "risk_score"} {
		key := dbFieldAlias(col)
		v, ok := fields[key]
		if !ok {
			continue
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, v)
		i++
	}
	if len(setClauses) == 0 {
		return nil
	}
	query := "UPDATE unified_threats SET " + joinClauses(setClauses) + " WHERE id = $1"
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func dbFieldAlias(col string) string {
	switch col {
	case "risk_score":
		return "riskScore"
	default:
		return col
	}
}

func joinClauses(clauses []string) string {
	out := clauses[0]
	for _, c := range clauses[1:] {
		out += ", " + c
	}
	return out
}

// UpsertVulnerability inserts or refreshes a scanner-reported finding.
func (r *Repository) UpsertVulnerability(ctx context.Context, v *domain.Vulnerability) error {
	assets, err := marshal(v.AffectedAssets)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO vulnerabilities
			(id, scanner_vuln_id, cve, title, description, severity, cvss_score,
			 exploit_available, affected_assets, first_seen, last_seen, scan_id, risk_score, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			last_seen = EXCLUDED.last_seen, risk_score = EXCLUDED.risk_score,
			status = EXCLUDED.status, affected_assets = EXCLUDED.affected_assets`,
		v.ID, v.ScannerVulnID, v.CVE, v.Title, v.Description, v.Severity, v.CVSSScore,
		v.ExploitAvailable, assets, v.FirstSeen, v.LastSeen, v.ScanID, v.RiskScore, v.Status,
	)
	return err
}

// TopVulnerabilitiesByRisk returns up to limit open vulnerabilities
// ordered by risk score descending.
func (r *Repository) TopVulnerabilitiesByRisk(ctx context.Context, limit int) ([]*domain.Vulnerability, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, scanner_vuln_id, cve, title, description, severity, cvss_score,
		       exploit_available, affected_assets, first_seen, last_seen, scan_id, risk_score, status
		FROM vulnerabilities WHERE status = 'open' ORDER BY risk_score DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Vulnerability
	for rows.Next() {
		var v domain.Vulnerability
		var assets []byte
		var cve, scanID sql.NullString
		err := rows.Scan(&v.ID, &v.ScannerVulnID, &cve, &v.Title, &v.Description, &v.Severity,
			&v.CVSSScore, &v.ExploitAvailable, &assets, &v.FirstSeen, &v.LastSeen, &scanID,
			&v.RiskScore, &v.Status)
		if err != nil {
			return nil, err
		}
		v.CVE = cve.String
		v.ScanID = scanID.String
		if err := unmarshalInto(assets, &v.AffectedAssets); err != nil {
			return nil, err
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// UpsertCloudSecurityFinding inserts or refreshes a posture finding.
func (r *Repository) UpsertCloudSecurityFinding(ctx context.Context, f *domain.CloudSecurityFinding) error {
	intel, err := marshal(f.ThreatIntelligence)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cloud_security_findings
			(id, finding_id, platform, resource_type, resource_id, region, account_id,
			 compliance_status, control_id, threat_intelligence, remediation, severity, status,
			 workflow_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (id) DO UPDATE SET
			compliance_status = EXCLUDED.compliance_status, status = EXCLUDED.status,
			workflow_status = EXCLUDED.workflow_status`,
		f.ID, f.FindingID, f.Platform, f.ResourceType, f.ResourceID, f.Region, f.AccountID,
		f.ComplianceStatus, f.ControlID, intel, f.Remediation, f.Severity, f.Status, f.WorkflowStatus,
	)
	return err
}

// CriticalFindings returns up to limit non-compliant critical/high
// severity cloud findings.
func (r *Repository) CriticalFindings(ctx context.Context, limit int) ([]*domain.CloudSecurityFinding, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, finding_id, platform, resource_type, resource_id, region, account_id,
		       compliance_status, control_id, threat_intelligence, remediation, severity, status,
		       workflow_status
		FROM cloud_security_findings
		WHERE compliance_status = 'non-compliant' AND severity IN ('critical', 'high')
		ORDER BY severity ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.CloudSecurityFinding
	for rows.Next() {
		var f domain.CloudSecurityFinding
		var intel []byte
		var region, controlID, remediation sql.NullString
		err := rows.Scan(&f.ID, &f.FindingID, &f.Platform, &f.ResourceType, &f.ResourceID, &region,
			&f.AccountID, &f.ComplianceStatus, &controlID, &intel, &remediation, &f.Severity,
			&f.Status, &f.WorkflowStatus)
		if err != nil {
			return nil, err
		}
		f.Region = region.String
		f.ControlID = controlID.String
		f.Remediation = remediation.String
		if err := unmarshalInto(intel, &f.ThreatIntelligence); err != nil {
			return nil, err
		}
		out = append(out, &f)
	}
	return out, rows.Err()
}

// CreateTicket persists a ticket created by the action dispatcher.
func (r *Repository) CreateTicket(ctx context.Context, t *domain.Ticket) error {
	linkedThreats, err := marshal(t.LinkedThreats)
	if err != nil {
		return err
	}
	linkedVulns, err := marshal(t.LinkedVulnerabilities)
	if err != nil {
		return err
	}
	linkedFindings, err := marshal(t.LinkedFindings)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO tickets
			(id, external_id, platform, title, description, priority, severity, assignee,
			 reporter, status, linked_threats, linked_vulnerabilities, linked_findings,
			 created_at, updated_at, sla_status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		t.ID, t.ExternalID, t.Platform, t.Title, t.Description, t.Priority, t.Severity, t.Assignee,
		t.Reporter, t.Status, linkedThreats, linkedVulns, linkedFindings, t.CreatedAt, t.UpdatedAt,
		t.SLAStatus,
	)
	return err
}

// CreateTicketMapping links a created ticket back to the record that
// triggered it.
func (r *Repository) CreateTicketMapping(ctx context.Context, m *domain.TicketMapping) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ticket_mappings
			(ticket_id, external_id, integration_id, threat_id, vulnerability_id, finding_id)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		m.TicketID, m.ExternalID, m.IntegrationID, nullable(m.ThreatID), nullable(m.VulnerabilityID),
		nullable(m.FindingID),
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// CountEventsByStatus returns the count of security events grouped by
// status.
func (r *Repository) CountEventsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, count(*) FROM security_events GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

// CountConnectedIntegrationsByToolType returns, per tool type, the
// number of integrations currently in the "connected" status — the
// input the Posture Aggregator's per-tool-type coverage figure is
// derived from (coverage is 100 if this is >=1, else 0).
func (r *Repository) CountConnectedIntegrationsByToolType(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT type, count(*) FROM integrations WHERE status = $1 GROUP BY type`,
		string(domain.IntegrationStatusConnected))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		out[typ] = n
	}
	return out, rows.Err()
}

// Package domain holds the source-agnostic record types the fusion
// engine correlates: integrations, normalized events, vulnerabilities,
// cloud findings, tickets and the unified threats produced by the
// correlation engine.
package domain

import (
	"strings"
	"time"
)

// Severity is the canonical severity scale every inbound record is
// mapped onto before it enters the rest of the pipeline.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

// CanonicalSeverities lists the canonical levels in priority order,
// highest first. The severity mapper walks this order when matching
// vendor labels.
var CanonicalSeverities = []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}

// SeverityScore is the fixed weight table used by risk scoring.
var SeverityScore = map[Severity]int{
	SeverityCritical: 40,
	SeverityHigh:     30,
	SeverityMedium:   20,
	SeverityLow:      10,
	SeverityInfo:     5,
}

// ToolType identifies the category of vendor tool an integration
// speaks to.
type ToolType string

const (
	ToolTypeSIEM                ToolType = "siem"
	ToolTypeVulnerabilityScanner ToolType = "vulnerability-scanner"
	ToolTypeCloudSecurity        ToolType = "cloud-security"
	ToolTypeTicketing            ToolType = "ticketing"
)

// SupportedPlatforms is the server-side whitelist of (type, platform)
// pairs. An integration whose pair is absent here fails fast.
var SupportedPlatforms = map[ToolType][]string{
	ToolTypeSIEM:                 {"splunk", "qradar", "elastic", "sentinel", "chronicle", "sumologic", "custom"},
	ToolTypeVulnerabilityScanner: {"nessus", "qualys", "rapid7", "openvas", "acunetix", "burp", "custom"},
	ToolTypeCloudSecurity:        {"aws", "azure", "gcp", "alibaba", "oracle", "ibm"},
	ToolTypeTicketing:            {"jira", "servicenow", "remedy", "zendesk", "freshservice", "custom"},
}

// IsSupportedPlatform reports whether platform is whitelisted for typ.
func IsSupportedPlatform(typ ToolType, platform string) bool {
	for _, p := range SupportedPlatforms[typ] {
		if p == platform {
			return true
		}
	}
	return false
}

// AuthType enumerates the credential schemes connectionConfig accepts.
type AuthType string

const (
	AuthTypeAPIKey      AuthType = "api-key"
	AuthTypeOAuth2      AuthType = "oauth2"
	AuthTypeBasic       AuthType = "basic"
	AuthTypeToken       AuthType = "token"
	AuthTypeCertificate AuthType = "certificate"
)

// SyncDirection describes which way data flows for an integration.
type SyncDirection string

const (
	SyncDirectionInbound       SyncDirection = "inbound"
	SyncDirectionOutbound      SyncDirection = "outbound"
	SyncDirectionBidirectional SyncDirection = "bidirectional"
)

// IntegrationStatus is the lifecycle state of an Integration row.
type IntegrationStatus string

const (
	IntegrationStatusConfiguring IntegrationStatus = "configuring"
	IntegrationStatusConnected   IntegrationStatus = "connected"
	IntegrationStatusDisconnected IntegrationStatus = "disconnected"
	IntegrationStatusError       IntegrationStatus = "error"
	IntegrationStatusTesting     IntegrationStatus = "testing"
)

// ConnectionConfig is the per-integration transport configuration.
type ConnectionConfig struct {
	Endpoint       string            `json:"endpoint" db:"endpoint"`
	AuthType       AuthType          `json:"authType" db:"auth_type"`
	Credentials    map[string]string `json:"credentials" db:"-"`
	Timeout        time.Duration     `json:"timeout" db:"timeout"`
	RetryAttempts  int               `json:"retryAttempts" db:"retry_attempts"`
	RetryDelay     time.Duration     `json:"retryDelay" db:"retry_delay"`
	SSLVerify      bool              `json:"sslVerify" db:"ssl_verify"`
	Proxy          string            `json:"proxy,omitempty" db:"proxy"`
	CustomHeaders  map[string]string `json:"customHeaders,omitempty" db:"-"`
}

// SyncPolicy controls whether and how often an integration is synced.
type SyncPolicy struct {
	Enabled         bool          `json:"enabled" db:"enabled"`
	Direction       SyncDirection `json:"direction" db:"direction"`
	IntervalMinutes int           `json:"intervalMinutes" db:"interval_minutes"`
	Filter          map[string]any `json:"filter,omitempty" db:"-"`
}

// FieldMapping is one (sourceField, targetField, transform, required,
// default) rule evaluated by the Field Mapper.
type FieldMapping struct {
	SourceField  string `json:"sourceField"`
	TargetField  string `json:"targetField"`
	Transform    string `json:"transform"`
	Required     bool   `json:"required"`
	DefaultValue any    `json:"defaultValue,omitempty"`
}

// SeverityMapping maps canonical severities to the vendor labels that
// should resolve to them.
type SeverityMapping map[Severity][]string

// Features is a capability bitmap advertised by an integration.
type Features uint32

const (
	FeatureSync Features = 1 << iota
	FeatureWebhook
	FeatureTicketing
	FeatureScanning
	FeatureRemediation
)

// Integration is the persistent binding to a vendor tool via a
// concrete adapter.
type Integration struct {
	ID               string            `json:"id" db:"id"`
	Name             string            `json:"name" db:"name"`
	Type             ToolType          `json:"type" db:"type"`
	Platform         string            `json:"platform" db:"platform"`
	ConnectionConfig ConnectionConfig  `json:"connectionConfig" db:"connection_config"`
	SyncPolicy       SyncPolicy        `json:"syncPolicy" db:"sync_policy"`
	FieldMappings    []FieldMapping    `json:"fieldMappings" db:"field_mappings"`
	SeverityMapping  SeverityMapping   `json:"severityMapping" db:"severity_mapping"`
	Features         Features          `json:"features" db:"features"`
	Status           IntegrationStatus `json:"status" db:"status"`
	LastConnected    *time.Time        `json:"lastConnected,omitempty" db:"last_connected"`
	LastSync         *time.Time        `json:"lastSync,omitempty" db:"last_sync"`
	CreatedAt        time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time         `json:"updatedAt" db:"updated_at"`
	Version          int               `json:"version" db:"version"`
}

// EventStatus is the triage state of a NormalizedEvent.
type EventStatus string

const (
	EventStatusNew        EventStatus = "new"
	EventStatusInProgress EventStatus = "in-progress"
	EventStatusResolved   EventStatus = "resolved"
)

// NormalizedEvent is the source-agnostic record every adapter emits
// after running its inbound payload through the normalization
// pipeline.
type NormalizedEvent struct {
	ID                  string         `json:"id" db:"id"`
	Timestamp           time.Time      `json:"timestamp" db:"timestamp"`
	SourceType          ToolType       `json:"sourceType" db:"source_type"`
	SourceIntegrationID string         `json:"sourceIntegrationId" db:"source_integration_id"`
	EventType           string         `json:"eventType" db:"event_type"`
	Severity            Severity       `json:"severity" db:"severity"`
	Title               string         `json:"title" db:"title"`
	Description         string         `json:"description" db:"description"`
	Category            string         `json:"category" db:"category"`
	Subcategory         string         `json:"subcategory,omitempty" db:"subcategory"`
	SourceIP            string         `json:"sourceIP,omitempty" db:"source_ip"`
	DestIP              string         `json:"destIP,omitempty" db:"dest_ip"`
	User                string         `json:"user,omitempty" db:"user"`
	Host                string         `json:"host,omitempty" db:"host"`
	Protocol             string        `json:"protocol,omitempty" db:"protocol"`
	Tags                []string       `json:"tags,omitempty" db:"tags"`
	RawPayload          map[string]any `json:"rawPayload,omitempty" db:"raw_payload"`
	Status              EventStatus    `json:"status" db:"status"`

	// Extra carries fields the field mapper wrote that have no
	// first-class struct slot (e.g. assetId, assetCriticality,
	// exploitAvailable) — correlation conditions and aggregations read
	// any field name without a first-class slot out of this bag.
	Extra map[string]any `json:"extra,omitempty" db:"extra"`
}

// Field reads a named attribute off the event: a name with a
// first-class struct field is read from that field; any other name is
// looked up in Extra. The correlation engine resolves names the same
// way through its own fieldValue helper.
func (e *NormalizedEvent) Field(name string) (any, bool) {
	switch name {
	case "id":
		return e.ID, true
	case "timestamp":
		return e.Timestamp, true
	case "sourceType":
		return string(e.SourceType), true
	case "sourceIntegrationId":
		return e.SourceIntegrationID, true
	case "eventType":
		return e.EventType, true
	case "severity":
		return string(e.Severity), true
	case "title":
		return e.Title, true
	case "description":
		return e.Description, true
	case "category":
		return e.Category, true
	case "subcategory":
		return e.Subcategory, true
	case "sourceIP":
		return e.SourceIP, true
	case "destIP":
		return e.DestIP, true
	case "user":
		return e.User, true
	case "host":
		return e.Host, true
	case "protocol":
		return e.Protocol, true
	case "status":
		return string(e.Status), true
	}
	if e.Extra == nil {
		return nil, false
	}
	v, ok := e.Extra[name]
	return v, ok
}

// EventKind enumerates the adapter boundary events. Every adapter
// communicates with the rest of the engine exclusively by emitting
// these onto its event channel.
type EventKind string

const (
	EventIntegrationConnected    EventKind = "integration.connected"
	EventIntegrationDisconnected EventKind = "integration.disconnected"
	EventIntegrationError        EventKind = "integration.error"
	EventSyncStarted             EventKind = "sync.started"
	EventSyncCompleted           EventKind = "sync.completed"
	EventSyncFailed              EventKind = "sync.failed"
	EventThreatDetected          EventKind = "threat.detected"
	EventVulnerabilityDiscovered EventKind = "vulnerability.discovered"
	EventFindingCreated          EventKind = "finding.created"
	EventTicketCreated           EventKind = "ticket.created"
	EventTicketUpdated           EventKind = "ticket.updated"
	EventTicketSynced            EventKind = "ticket.synced"
)

// Event is the typed envelope every adapter emits; Payload carries the
// kind-specific body (e.g. a NormalizedEvent for EventThreatDetected,
// sync counts for EventSyncCompleted).
type Event struct {
	Kind          EventKind      `json:"kind"`
	IntegrationID string         `json:"integrationId"`
	At            time.Time      `json:"at"`
	Payload       map[string]any `json:"payload,omitempty"`
}

// VulnerabilityStatus is the remediation state of a Vulnerability.
type VulnerabilityStatus string

const (
	VulnerabilityStatusOpen         VulnerabilityStatus = "open"
	VulnerabilityStatusMitigated    VulnerabilityStatus = "mitigated"
	VulnerabilityStatusAccepted     VulnerabilityStatus = "accepted"
	VulnerabilityStatusFalsePositive VulnerabilityStatus = "false-positive"
	VulnerabilityStatusFixed        VulnerabilityStatus = "fixed"
)

// Vulnerability is a scanner-reported weakness on one or more assets.
type Vulnerability struct {
	ID               string              `json:"id" db:"id"`
	ScannerVulnID    string              `json:"scannerVulnId" db:"scanner_vuln_id"`
	CVE              string              `json:"cve,omitempty" db:"cve"`
	Title            string              `json:"title" db:"title"`
	Description      string              `json:"description" db:"description"`
	Severity         Severity            `json:"severity" db:"severity"`
	CVSSScore        float64             `json:"cvssScore" db:"cvss_score"`
	ExploitAvailable bool                `json:"exploitAvailable" db:"exploit_available"`
	AffectedAssets   []string            `json:"affectedAssets" db:"affected_assets"`
	FirstSeen        time.Time           `json:"firstSeen" db:"first_seen"`
	LastSeen         time.Time           `json:"lastSeen" db:"last_seen"`
	ScanID           string              `json:"scanId,omitempty" db:"scan_id"`
	RiskScore        float64             `json:"riskScore" db:"risk_score"`
	Status           VulnerabilityStatus `json:"status" db:"status"`
}

// ComplianceStatus is the posture state of a CloudSecurityFinding.
type ComplianceStatus string

const (
	ComplianceStatusCompliant    ComplianceStatus = "compliant"
	ComplianceStatusNonCompliant ComplianceStatus = "non-compliant"
	ComplianceStatusNotApplicable ComplianceStatus = "not-applicable"
)

// CloudSecurityFinding is a posture/compliance issue reported by a
// cloud provider's security service.
type CloudSecurityFinding struct {
	ID                string           `json:"id" db:"id"`
	FindingID         string           `json:"findingId" db:"finding_id"`
	Platform          string           `json:"platform" db:"platform"`
	ResourceType      string           `json:"resourceType" db:"resource_type"`
	ResourceID        string           `json:"resourceId" db:"resource_id"`
	Region            string           `json:"region,omitempty" db:"region"`
	AccountID         string           `json:"accountId" db:"account_id"`
	ComplianceStatus  ComplianceStatus `json:"complianceStatus" db:"compliance_status"`
	ControlID         string           `json:"controlId,omitempty" db:"control_id"`
	ThreatIntelligence map[string]any  `json:"threatIntelligence,omitempty" db:"threat_intelligence"`
	Remediation        string          `json:"remediation,omitempty" db:"remediation"`
	Severity           Severity        `json:"severity" db:"severity"`
	Status             string          `json:"status" db:"status"`
	WorkflowStatus      string         `json:"workflowStatus" db:"workflow_status"`
}

// SLAStatus tracks a ticket's SLA health.
type SLAStatus string

const (
	SLAStatusOnTrack SLAStatus = "on-track"
	SLAStatusAtRisk  SLAStatus = "at-risk"
	SLAStatusBreached SLAStatus = "breached"
)

// Ticket is a work item created in (or mirrored from) a ticketing
// platform.
type Ticket struct {
	ID                      string     `json:"id" db:"id"`
	ExternalID              string     `json:"externalId" db:"external_id"`
	Platform                string     `json:"platform" db:"platform"`
	Title                   string     `json:"title" db:"title"`
	Description             string     `json:"description" db:"description"`
	Priority                string     `json:"priority" db:"priority"`
	Severity                Severity   `json:"severity" db:"severity"`
	Assignee                string     `json:"assignee,omitempty" db:"assignee"`
	Reporter                string     `json:"reporter" db:"reporter"`
	Status                  string     `json:"status" db:"status"`
	LinkedThreats           []string   `json:"linkedThreats,omitempty" db:"linked_threats"`
	LinkedVulnerabilities   []string   `json:"linkedVulnerabilities,omitempty" db:"linked_vulnerabilities"`
	LinkedFindings          []string   `json:"linkedFindings,omitempty" db:"linked_findings"`
	CreatedAt               time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt               time.Time  `json:"updatedAt" db:"updated_at"`
	ResolvedAt              *time.Time `json:"resolvedAt,omitempty" db:"resolved_at"`
	SLAStatus                SLAStatus `json:"slaStatus" db:"sla_status"`
	TimeToResolutionMinutes *int       `json:"timeToResolutionMinutes,omitempty" db:"time_to_resolution_minutes"`
}

// TicketMapping links a locally-created ticket record back to the
// threat/vulnerability/finding it was raised for.
type TicketMapping struct {
	TicketID        string `json:"ticketId" db:"ticket_id"`
	ExternalID      string `json:"externalId" db:"external_id"`
	IntegrationID   string `json:"integrationId" db:"integration_id"`
	ThreatID        string `json:"threatId,omitempty" db:"threat_id"`
	VulnerabilityID string `json:"vulnerabilityId,omitempty" db:"vulnerability_id"`
	FindingID       string `json:"findingId,omitempty" db:"finding_id"`
}

// ThreatStatus is the triage state of a UnifiedThreat.
type ThreatStatus string

const (
	ThreatStatusActive        ThreatStatus = "active"
	ThreatStatusInvestigating ThreatStatus = "investigating"
	ThreatStatusContained     ThreatStatus = "contained"
	ThreatStatusResolved      ThreatStatus = "resolved"
)

// ThreatSource is one contributing event behind a UnifiedThreat.
type ThreatSource struct {
	ToolType      ToolType       `json:"toolType"`
	IntegrationID string         `json:"integrationId"`
	SourceID      string         `json:"sourceId"`
	Timestamp     time.Time      `json:"timestamp"`
	RawData       map[string]any `json:"rawData,omitempty"`
}

// RiskFactor is one contributor to a UnifiedThreat's risk score.
type RiskFactor struct {
	Factor      string  `json:"factor"`
	Weight      float64 `json:"weight"`
	Description string  `json:"description"`
}

// UnifiedThreat is the correlation engine's synthetic output: a fused
// view of the events a rule matched.
type UnifiedThreat struct {
	ID              string         `json:"id" db:"id"`
	CorrelationID   string         `json:"correlationId" db:"correlation_id"`
	Title           string         `json:"title" db:"title"`
	Description     string         `json:"description" db:"description"`
	Severity        Severity       `json:"severity" db:"severity"`
	Confidence      float64        `json:"confidence" db:"confidence"`
	Sources         []ThreatSource `json:"sources" db:"sources"`
	FirstSeen       time.Time      `json:"firstSeen" db:"first_seen"`
	LastSeen        time.Time      `json:"lastSeen" db:"last_seen"`
	EventCount      int            `json:"eventCount" db:"event_count"`
	AffectedAssets  []string       `json:"affectedAssets" db:"affected_assets"`
	AffectedUsers   []string       `json:"affectedUsers" db:"affected_users"`
	Status          ThreatStatus   `json:"status" db:"status"`
	Evidence        []string       `json:"evidence,omitempty" db:"evidence"`
	RiskScore       float64        `json:"riskScore" db:"risk_score"`
	RiskFactors     []RiskFactor   `json:"riskFactors" db:"risk_factors"`

	// DedupKey is the deduplication engine's computed collapse key for
	// this threat, persisted alongside it so a later tick can find and
	// merge into the same row instead of inserting a duplicate. Not
	// part of the wire model.
	DedupKey string `json:"-" db:"dedup_key"`
}

// RuleIDFromCorrelationID recovers the owning rule id from a
// correlationId built as "<ruleId>-<tickTimestampMillis>".
func RuleIDFromCorrelationID(correlationID string) string {
	idx := strings.LastIndexByte(correlationID, '-')
	if idx < 0 {
		return correlationID
	}
	return correlationID[:idx]
}

// Field reads a named attribute off the threat, checking first-class
// struct fields before falling back to its first source's id. This is
// what deduplication's configurable key fields operate over, mirroring
// NormalizedEvent.Field.
func (t *UnifiedThreat) Field(name string) (any, bool) {
	switch name {
	case "id":
		return t.ID, true
	case "correlationId":
		return t.CorrelationID, true
	case "ruleId":
		return RuleIDFromCorrelationID(t.CorrelationID), true
	case "title":
		return t.Title, true
	case "description":
		return t.Description, true
	case "severity":
		return string(t.Severity), true
	case "confidence":
		return t.Confidence, true
	case "firstSeen":
		return t.FirstSeen, true
	case "lastSeen":
		return t.LastSeen, true
	case "eventCount":
		return t.EventCount, true
	case "status":
		return string(t.Status), true
	case "riskScore":
		return t.RiskScore, true
	case "sourceId":
		if len(t.Sources) == 0 {
			return "", false
		}
		return t.Sources[0].SourceID, true
	}
	return nil, false
}

// AggregationFunction is one of the reducers a rule's aggregations[]
// entry can apply to a grouped set of events.
type AggregationFunction string

const (
	AggCount  AggregationFunction = "count"
	AggSum    AggregationFunction = "sum"
	AggAvg    AggregationFunction = "avg"
	AggMin    AggregationFunction = "min"
	AggMax    AggregationFunction = "max"
	AggUnique AggregationFunction = "unique"
)

// Operator is one of the comparison operators a rule condition can use.
type Operator string

const (
	OpEq       Operator = "eq"
	OpNe       Operator = "ne"
	OpGt       Operator = "gt"
	OpGte      Operator = "gte"
	OpLt       Operator = "lt"
	OpLte      Operator = "lte"
	OpIn       Operator = "in"
	OpContains Operator = "contains"
)

// Condition is one AND-ed predicate in a correlation rule.
type Condition struct {
	Field           string   `json:"field"`
	Operator        Operator `json:"operator"`
	Value           any      `json:"value"`
	CaseInsensitive bool     `json:"caseInsensitive,omitempty"`
}

// Having restricts an aggregation's surviving groups.
type Having struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Aggregation groups surviving events and reduces each group,
// optionally filtering groups via Having.
type Aggregation struct {
	Field    string              `json:"field"`
	Function AggregationFunction `json:"function"`
	GroupBy  []string            `json:"groupBy,omitempty"`
	Having   *Having             `json:"having,omitempty"`
}

// ActionType is one of the side effects a rule can drive.
type ActionType string

const (
	ActionCreateThreat    ActionType = "create-threat"
	ActionUpdateThreat    ActionType = "update-threat"
	ActionCreateTicket    ActionType = "create-ticket"
	ActionSendAlert       ActionType = "send-alert"
	ActionExecutePlaybook ActionType = "execute-playbook"
)

// Action is one rule-driven side effect, executed in the order given
// on the owning rule.
type Action struct {
	Type       ActionType     `json:"type"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// CorrelationRule is a filter + aggregation + severity + actions
// pipeline applied to a window of buffered events.
type CorrelationRule struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Enabled      bool          `json:"enabled"`
	SourceTypes  []ToolType    `json:"sourceTypes"`
	Conditions   []Condition   `json:"conditions"`
	Aggregations []Aggregation `json:"aggregations"`
	Severity     Severity      `json:"severity"`
	Tags         []string      `json:"tags,omitempty"`
	Actions      []Action      `json:"actions"`
}

// OutputDestinationKind enumerates the correlation engine's output
// sinks beyond the persistent store.
type OutputDestinationKind string

const (
	OutputDestinationKafka     OutputDestinationKind = "kafka"
	OutputDestinationWebsocket OutputDestinationKind = "websocket"
)

// OutputDestination is one configured correlation-output sink.
type OutputDestination struct {
	Kind   OutputDestinationKind `json:"kind"`
	Target string                `json:"target"`
}

// CorrelationConfig configures the Correlation Engine's window,
// dedup, and output behavior.
type CorrelationConfig struct {
	CorrelationWindowMinutes int                 `json:"correlationWindowMinutes"`
	LookbackMinutes          int                 `json:"lookbackMinutes"`
	DeduplicationEnabled     bool                `json:"deduplicationEnabled"`
	DeduplicationFields      []string            `json:"deduplicationFields,omitempty"`
	EnrichmentSources        []string            `json:"enrichmentSources,omitempty"`
	OutputFormat             string              `json:"outputFormat,omitempty"`
	OutputDestinations       []OutputDestination `json:"outputDestinations,omitempty"`
}

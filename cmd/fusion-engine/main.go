// Command fusion-engine is the single process that wires the
// Integration Registry, Sync Orchestrator, Correlation Engine, Action
// Dispatcher, Posture Aggregator, and Webhook Receiver together and
// serves them over HTTP.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/iff-guardian/fusion/internal/adapter"
	"github.com/iff-guardian/fusion/internal/adapter/drivers/awssecurityhub"
	"github.com/iff-guardian/fusion/internal/adapter/drivers/jira"
	"github.com/iff-guardian/fusion/internal/adapter/drivers/nessus"
	"github.com/iff-guardian/fusion/internal/adapter/drivers/splunk"
	"github.com/iff-guardian/fusion/internal/correlation"
	"github.com/iff-guardian/fusion/internal/dispatcher"
	"github.com/iff-guardian/fusion/internal/domain"
	"github.com/iff-guardian/fusion/internal/eventbuffer"
	"github.com/iff-guardian/fusion/internal/eventbus"
	"github.com/iff-guardian/fusion/internal/ingest"
	"github.com/iff-guardian/fusion/internal/lifecycle"
	"github.com/iff-guardian/fusion/internal/orchestrator"
	"github.com/iff-guardian/fusion/internal/posture"
	"github.com/iff-guardian/fusion/internal/registry"
	"github.com/iff-guardian/fusion/internal/vault"
	"github.com/iff-guardian/fusion/internal/webhook"
	"github.com/iff-guardian/fusion/pkg/config"
	"github.com/iff-guardian/fusion/pkg/database"
	"github.com/iff-guardian/fusion/pkg/health"
	"github.com/iff-guardian/fusion/pkg/logger"
	"github.com/iff-guardian/fusion/pkg/metrics"
	"github.com/iff-guardian/fusion/pkg/redis"
)

func main() {
	cfg, err := config.Load("fusion-engine")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.LogLevel, cfg.ServiceName)
	log.Info("starting fusion engine", "environment", cfg.Environment)

	m := metrics.NewCollector(cfg.ServiceName)

	db, err := database.NewPostgres(cfg.Database.URL)
	if err != nil {
		log.Fatal("connect postgres failed", "error", err)
	}
	repo := database.NewRepository(db)

	redisClient, err := redis.NewClient(cfg.Redis.URL)
	if err != nil {
		log.Fatal("connect redis failed", "error", err)
	}

	v, err := vault.New(cfg.Vault.MasterKey)
	if err != nil {
		log.Fatal("credential vault init failed", "error", err)
	}

	bus := eventbus.New()

	reg := registry.New(repo, v, bus, log)
	registerFactories(reg)

	orch := orchestrator.New(reg, repo, redisClient, m, log, cfg.Engine.MaxConcurrentSyncs,
		orchestrator.WithQueueDepth(cfg.Engine.SyncQueueDepth))

	buffer := eventbuffer.New(repo, redisClient)

	var alertSink dispatcher.AlertSink
	if cfg.Kafka.Brokers != "" {
		sink, err := dispatcher.NewKafkaAlertSink(cfg.Kafka.Brokers, cfg.Kafka.Topic+".alerts", log)
		if err != nil {
			log.Warn("kafka alert sink init failed, falling back to log-only alerts", "error", err)
		} else {
			alertSink = sink
		}
	}

	var playbookInvoker dispatcher.PlaybookInvoker
	if cfg.Security.PlaybookEndpoint != "" {
		playbookInvoker = dispatcher.NewJWTPlaybookInvoker(
			cfg.Security.PlaybookEndpoint, []byte(cfg.Security.JWTSecret), time.Duration(cfg.Security.PlaybookExpiry)*time.Second)
	}

	disp := dispatcher.New(reg, repo, alertSink, playbookInvoker, m, log)

	correlationCfg := domain.CorrelationConfig{
		CorrelationWindowMinutes: cfg.Engine.CorrelationWindowMinutes,
		LookbackMinutes:          2 * cfg.Engine.CorrelationWindowMinutes,
		DeduplicationEnabled:     true,
		DeduplicationFields:      []string{"sourceId", "ruleId"},
		OutputFormat:             "json",
	}
	if cfg.Kafka.Brokers != "" {
		correlationCfg.OutputDestinations = append(correlationCfg.OutputDestinations,
			domain.OutputDestination{Kind: domain.OutputDestinationKafka, Target: cfg.Kafka.Topic})
	}
	correlationCfg.OutputDestinations = append(correlationCfg.OutputDestinations,
		domain.OutputDestination{Kind: domain.OutputDestinationWebsocket, Target: "/stream/threats"})

	engine := correlation.New(buffer, repo, disp, m, log, correlationCfg)
	engine.SetRules(defaultCorrelationRules())

	hub := posture.NewHub(log)
	aggregator := posture.New(repo, redisClient, log)

	var activeOutputs []correlation.OutputPublisher
	if cfg.Kafka.Brokers != "" {
		pub, err := dispatcher.NewKafkaOutputPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
		if err != nil {
			log.Warn("kafka output publisher init failed", "error", err)
		} else {
			activeOutputs = append(activeOutputs, pub)
		}
	}
	activeOutputs = append(activeOutputs, hub)
	engine.SetOutputs(activeOutputs)

	whServer := webhook.New(reg, cfg.Webhook.AllowedOrigins, log)

	coordinator := lifecycle.New(orch, engine, reg, db, redisClient, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	integrations, err := repo.ListIntegrations(ctx)
	if err != nil {
		log.Warn("initial integration list failed, starting with none scheduled", "error", err)
	}
	coordinator.Start(ctx, time.Duration(cfg.Engine.CorrelationIntervalMs)*time.Millisecond, integrations)
	reg.SetScheduler(coordinator.Context(), orch)

	busEvents, unsubscribe := bus.Subscribe(256)
	defer unsubscribe()
	go ingest.New(repo, redisClient, log).Run(ctx, busEvents)

	go hub.Run(ctx)

	checker := health.New()
	checker.RegisterPostgresCheck(database.HealthCheck(db))
	checker.RegisterRedisCheck(redis.HealthCheck(redisClient))

	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/health", health.HandlerFunc(checker))
	router.GET("/ready", health.ReadinessHandlerFunc(checker))
	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, metrics.HandlerFunc())
	}
	router.GET("/posture", func(c *gin.Context) {
		snap, err := aggregator.Snapshot(c.Request.Context(), 10, 14)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, snap)
	})
	router.GET("/stream/threats", func(c *gin.Context) {
		hub.HandleWebSocket(c.Request.Context(), c.Writer, c.Request)
	})

	apiServer := &http.Server{Addr: ":" + strconv.Itoa(cfg.Port), Handler: router}
	webhookServer := &http.Server{Addr: ":" + strconv.Itoa(cfg.Webhook.Port), Handler: whServer.Handler()}

	go func() {
		log.Info("api server listening", "port", cfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("api server failed", "error", err)
		}
	}()
	go func() {
		log.Info("webhook server listening", "port", cfg.Webhook.Port)
		if err := webhookServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("webhook server failed", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = apiServer.Shutdown(shutdownCtx)
	_ = webhookServer.Shutdown(shutdownCtx)

	if err := coordinator.Shutdown(20 * time.Second); err != nil {
		log.Warn("coordinator shutdown did not complete cleanly", "error", err)
	}

	log.Info("fusion engine stopped")
}

// registerFactories binds every vendor driver this build ships to the
// (toolType, platform) pair the Integration Registry dispatches on. An
// integration with no severityMapping of its own gets the built-in
// default, so canonical severity is guaranteed regardless of what the
// operator configured.
func registerFactories(reg *registry.Registry) {
	reg.RegisterFactory(domain.ToolTypeSIEM, "splunk", func(id string, in *domain.Integration) (adapter.Adapter, error) {
		return splunk.New(id, in.ConnectionConfig, in.FieldMappings, severityMappingOrDefault(in.SeverityMapping))
	})
	reg.RegisterFactory(domain.ToolTypeVulnerabilityScanner, "nessus", func(id string, in *domain.Integration) (adapter.Adapter, error) {
		return nessus.New(id, in.ConnectionConfig, severityMappingOrDefault(in.SeverityMapping))
	})
	reg.RegisterFactory(domain.ToolTypeCloudSecurity, "aws", func(id string, in *domain.Integration) (adapter.Adapter, error) {
		return awssecurityhub.New(id, in.ConnectionConfig, severityMappingOrDefault(in.SeverityMapping))
	})
	reg.RegisterFactory(domain.ToolTypeTicketing, "jira", func(id string, in *domain.Integration) (adapter.Adapter, error) {
		return jira.New(id, in.ConnectionConfig)
	})
}

func severityMappingOrDefault(m domain.SeverityMapping) domain.SeverityMapping {
	if len(m) > 0 {
		return m
	}
	return config.DefaultSeverityMapping()
}

// defaultCorrelationRules seeds the engine with the baseline
// cross-source rule this build ships: two or more distinct tools
// reporting high-or-critical findings against the same asset inside
// the correlation window synthesizes a single critical threat,
// instead of leaving the engine with no rules to evaluate.
func defaultCorrelationRules() []domain.CorrelationRule {
	return []domain.CorrelationRule{
		{
			ID:      "multi-source-critical",
			Name:    "Multi-source critical confirmation",
			Enabled: true,
			SourceTypes: []domain.ToolType{
				domain.ToolTypeSIEM, domain.ToolTypeVulnerabilityScanner, domain.ToolTypeCloudSecurity,
			},
			Conditions: []domain.Condition{
				{Field: "severity", Operator: domain.OpIn, Value: []string{"critical", "high"}},
			},
			Aggregations: []domain.Aggregation{
				{Field: "sourceType", Function: domain.AggUnique, GroupBy: []string{"assetId"},
					Having: &domain.Having{Field: "value", Operator: domain.OpGte, Value: 2}},
			},
			Severity: domain.SeverityCritical,
			Tags:     []string{"multi-source"},
			Actions: []domain.Action{
				{Type: domain.ActionCreateThreat},
				{Type: domain.ActionSendAlert, Parameters: map[string]any{"channel": "security-ops"}},
			},
		},
	}
}

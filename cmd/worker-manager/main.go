// cmd/worker-manager/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"travel-assistant/internal/api"
	"travel-assistant/internal/cascade"
	"travel-assistant/internal/common/aws"
	"travel-assistant/internal/common/camunda"
	"travel-assistant/internal/common/config"
	"travel-assistant/internal/common/database"
	"travel-assistant/internal/common/logger"
	"travel-assistant/internal/common/observability"
	"travel-assistant/internal/consent"
	"travel-assistant/internal/contextswitch"
	"travel-assistant/internal/dispatcher"
	"travel-assistant/internal/events"
	"travel-assistant/internal/providers/classifier"
	"travel-assistant/internal/providers/llm"
	"travel-assistant/internal/providers/places"
	"travel-assistant/internal/providers/rag"
	"travel-assistant/internal/providers/tools"
	"travel-assistant/internal/providers/websearch"
	"travel-assistant/internal/session"
	processturn "travel-assistant/internal/workers/conversation/process-turn"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func loadConfig() (*config.Config, error) {
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting travel assistant...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	obs := observability.New(cfg.Observability.ServiceName, cfg.Observability.JaegerEndpoint)
	defer obs.Shutdown()

	cascade.SetBands(cfg.Cascade.High, cfg.Cascade.Medium, cfg.Cascade.Low)

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")
	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	if err := pg.EnsureSchema(ctx); err != nil {
		zapLog.Fatal("postgres schema setup failed", zap.Error(err))
	}

	// --- Init Elasticsearch with retry ---
	var esClient *database.ElasticsearchClient
	err = retryWithBackoff(func() error {
		var err error
		esClient, err = database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			return err
		}
		return esClient.Ping()
	}, 15, 2*time.Second, zapLog, "Elasticsearch connection")
	if err != nil {
		zapLog.Fatal("elasticsearch failed after retries", zap.Error(err))
	}
	zapLog.Info("Elasticsearch connected successfully")

	// --- Init Redis with retry ---
	var redisClient *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redisClient, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		return redisClient.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")
	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redisClient.Close()
	zapLog.Info("Redis connected successfully")

	// --- Providers ---
	completer, err := llm.New(ctx, cfg, &llmLoggerAdapter{log})
	if err != nil {
		zapLog.Fatal("llm client init failed", zap.Error(err))
	}
	defer completer.Close()

	classifierClient := classifier.NewClient(classifier.Config{
		BaseURL:    cfg.APIs.Classifier.BaseURL,
		APIKey:     cfg.APIs.Classifier.APIKey,
		Timeout:    config.GetDuration(cfg.APIs.Classifier.Timeout),
		MaxRetries: cfg.APIs.Classifier.MaxRetries,
	}, &classifierLoggerAdapter{log})

	webClient := websearch.NewClient(websearch.Config{
		BaseURL:    cfg.APIs.WebSearch.BaseURL,
		APIKey:     cfg.APIs.WebSearch.APIKey,
		EngineID:   cfg.APIs.WebSearch.EngineID,
		Timeout:    config.GetDuration(cfg.APIs.WebSearch.Timeout),
		MaxResults: cfg.APIs.WebSearch.MaxResults,
	}, &websearchLoggerAdapter{log})

	ragClient := rag.NewClient(rag.Config{
		Index:      cfg.Database.Elasticsearch.Index,
		MaxResults: cfg.RAG.MaxResults,
		MinScore:   cfg.RAG.MinScore,
		CacheTTL:   cfg.RAGCacheTTL(),
	}, esClient.Client, redisClient.Client, &ragLoggerAdapter{log})

	toolsLog := &toolsLoggerAdapter{log}
	toolbox := &tools.Toolbox{
		WeatherTool: tools.NewWeatherClient(tools.HTTPConfig{
			BaseURL:    cfg.APIs.Weather.BaseURL,
			APIKey:     cfg.APIs.Weather.APIKey,
			Timeout:    config.GetDuration(cfg.APIs.Weather.Timeout),
			MaxRetries: cfg.APIs.Weather.MaxRetries,
		}, toolsLog),
		FlightsTool: tools.NewFlightsClient(tools.HTTPConfig{
			BaseURL:    cfg.APIs.Flights.BaseURL,
			APIKey:     cfg.APIs.Flights.APIKey,
			Timeout:    config.GetDuration(cfg.APIs.Flights.Timeout),
			MaxRetries: cfg.APIs.Flights.MaxRetries,
		}, toolsLog),
		CountryFactsTool: tools.NewCountryFacts(pg.DB, toolsLog),
	}

	var placesService *places.Service
	if cfg.APIs.Maps.APIKey != "" {
		placesService, err = places.NewService(cfg.APIs.Maps.APIKey, &placesLoggerAdapter{log})
		if err != nil {
			zapLog.Fatal("places client init failed", zap.Error(err))
		}
		toolbox.AttractionsTool = placesService
	} else {
		zapLog.Warn("maps api key not set, attractions lookups disabled")
	}

	// --- Cascade, context switching, consent ---
	stages := []cascade.Strategy{
		cascade.NewClassifierStage(classifierClient),
		cascade.NewLLMStage(completer),
		cascade.NewPatternStage(),
	}
	var cascadeOpts []cascade.Option
	if cfg.Cascade.GeocodeValidation && placesService != nil {
		geoCache := cascade.NewRedisGeocodeCache(redisClient.Client, time.Duration(cfg.Cascade.GeocodeCacheTTL)*time.Minute)
		cascadeOpts = append(cascadeOpts, cascade.WithLocationFilter(cascade.NewLocationFilter(placesService, geoCache)))
		zapLog.Info("geocode validation enabled")
	}
	extractor := cascade.New(&cascadeLoggerAdapter{log}, stages, cascadeOpts...)

	protocol := consent.NewProtocol(contextswitch.NewDetector(extractor), completer, &consentLoggerAdapter{log})

	// --- Session and receipts ---
	store := session.NewRedisStore(redisClient.Client, cfg.Session.KeyPrefix, cfg.SessionTTL(), &sessionLoggerAdapter{log})
	archive := session.NewReceiptArchive(pg.DB)

	var archiver events.Archiver
	if cfg.Session.ArchiveReceipts {
		archiver = archive
	}
	var publisher events.Publisher
	if sns := cfg.Integrations.AWS.SNS; sns.Enabled && sns.TopicARN != "" {
		snsClient, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region, sns.TopicARN)
		if err != nil {
			zapLog.Error("sns client init failed, receipts will not be published", zap.Error(err))
		} else {
			publisher = snsClient
		}
	}
	recorder := events.NewRecorder(archiver, publisher, &eventsLoggerAdapter{log})

	// --- Dispatcher ---
	turns, err := dispatcher.New(dispatcher.Deps{
		Store:         store,
		Cascade:       extractor,
		Consent:       protocol,
		Router:        dispatcher.NewLLMRouter(completer),
		Clarifier:     dispatcher.NewLLMClarifier(completer),
		LLM:           completer,
		Web:           webClient,
		Retriever:     ragClient,
		Tools:         toolbox,
		Receipts:      recorder,
		Observability: obs,
	}, &dispatcherLoggerAdapter{log})
	if err != nil {
		zapLog.Fatal("dispatcher init failed", zap.Error(err))
	}
	locks := dispatcher.NewThreadLocks()

	// --- Zeebe worker ---
	var zeebeClient *camunda.Client
	var workers []*camunda.CamundaWorker
	if cfg.Camunda.Enabled {
		err = retryWithBackoff(func() error {
			var err error
			zeebeClient, err = camunda.NewClientWithConfig(&camunda.ClientConfig{
				GatewayAddress:         cfg.Camunda.BrokerAddress,
				UsePlaintextConnection: true,
				RequestTimeout:         config.GetDuration(cfg.Camunda.RequestTimeout),
			})
			return err
		}, 10, 2*time.Second, zapLog, "Zeebe client initialization")
		if err != nil {
			zapLog.Fatal("zeebe client failed after retries", zap.Error(err))
		}
		zapLog.Info("Zeebe client connected successfully")

		if config.IsWorkerEnabled(cfg, processturn.TaskType) {
			wcfg := config.GetWorkerConfig(cfg, processturn.TaskType)
			ptCfg := processturn.LoadConfig()
			ptCfg.Timeout = config.GetDuration(wcfg.Timeout)
			handler := processturn.NewHandler(ptCfg, turns, locks, &processTurnLoggerAdapter{log},
				processturn.WithRecorder(obs),
				processturn.WithRetrier(zeebeClient),
			)
			workers = append(workers, camunda.NewWorker(
				zeebeClient.GetClient(),
				processturn.TaskType,
				camunda.WorkerOptions{
					MaxJobsActive: wcfg.MaxJobsActive,
					Timeout:       config.GetDuration(wcfg.Timeout),
				},
				handler,
				zapLog,
			))
		} else {
			zapLog.Info("worker disabled", zap.String("taskType", processturn.TaskType))
		}
	}

	// --- HTTP server ---
	ready := map[string]api.ReadyCheck{
		"redis":         redisClient.Ping,
		"postgres":      pg.Ping,
		"elasticsearch": func(context.Context) error { return esClient.Ping() },
	}
	if zeebeClient != nil {
		ready["zeebe"] = zeebeClient.HealthCheck
	}

	server := api.NewServer(api.Deps{
		Turns:   turns,
		Store:   store,
		Locks:   locks,
		History: archive,
		Ready:   ready,
	}, &apiLoggerAdapter{log})

	httpServer := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zapLog.Info("HTTP server listening", zap.String("address", cfg.Server.Address))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}
	for _, w := range workers {
		w.Stop(shutdownCtx)
	}
	if zeebeClient != nil {
		if err := zeebeClient.Close(); err != nil {
			zapLog.Error("Error closing Zeebe client", zap.Error(err))
		}
	}

	zapLog.Info("Travel assistant stopped gracefully")
}

// Logger adapters for packages that declare their own Logger interfaces
type dispatcherLoggerAdapter struct {
	logger.Logger
}

func (a *dispatcherLoggerAdapter) With(fields map[string]interface{}) dispatcher.Logger {
	return &dispatcherLoggerAdapter{a.Logger.With(fields)}
}

type cascadeLoggerAdapter struct {
	logger.Logger
}

func (a *cascadeLoggerAdapter) With(fields map[string]interface{}) cascade.Logger {
	return &cascadeLoggerAdapter{a.Logger.With(fields)}
}

type consentLoggerAdapter struct {
	logger.Logger
}

func (a *consentLoggerAdapter) With(fields map[string]interface{}) consent.Logger {
	return &consentLoggerAdapter{a.Logger.With(fields)}
}

type sessionLoggerAdapter struct {
	logger.Logger
}

func (a *sessionLoggerAdapter) With(fields map[string]interface{}) session.Logger {
	return &sessionLoggerAdapter{a.Logger.With(fields)}
}

type eventsLoggerAdapter struct {
	logger.Logger
}

func (a *eventsLoggerAdapter) With(fields map[string]interface{}) events.Logger {
	return &eventsLoggerAdapter{a.Logger.With(fields)}
}

type apiLoggerAdapter struct {
	logger.Logger
}

func (a *apiLoggerAdapter) With(fields map[string]interface{}) api.Logger {
	return &apiLoggerAdapter{a.Logger.With(fields)}
}

type processTurnLoggerAdapter struct {
	logger.Logger
}

func (a *processTurnLoggerAdapter) With(fields map[string]interface{}) processturn.Logger {
	return &processTurnLoggerAdapter{a.Logger.With(fields)}
}

type classifierLoggerAdapter struct {
	logger.Logger
}

func (a *classifierLoggerAdapter) With(fields map[string]interface{}) classifier.Logger {
	return &classifierLoggerAdapter{a.Logger.With(fields)}
}

type llmLoggerAdapter struct {
	logger.Logger
}

func (a *llmLoggerAdapter) With(fields map[string]interface{}) llm.Logger {
	return &llmLoggerAdapter{a.Logger.With(fields)}
}

type websearchLoggerAdapter struct {
	logger.Logger
}

func (a *websearchLoggerAdapter) With(fields map[string]interface{}) websearch.Logger {
	return &websearchLoggerAdapter{a.Logger.With(fields)}
}

type ragLoggerAdapter struct {
	logger.Logger
}

func (a *ragLoggerAdapter) With(fields map[string]interface{}) rag.Logger {
	return &ragLoggerAdapter{a.Logger.With(fields)}
}

type toolsLoggerAdapter struct {
	logger.Logger
}

func (a *toolsLoggerAdapter) With(fields map[string]interface{}) tools.Logger {
	return &toolsLoggerAdapter{a.Logger.With(fields)}
}

type placesLoggerAdapter struct {
	logger.Logger
}

func (a *placesLoggerAdapter) With(fields map[string]interface{}) places.Logger {
	return &placesLoggerAdapter{a.Logger.With(fields)}
}

package fleetcomm

import (
	"context"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/api"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/campaign"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/circuitbreak"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/database"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/deadletter"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/driver"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/healthchecker"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/kafka"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/minio"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/preset"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/prometheus"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/provider"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/recording"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/store"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/summarizer"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/transcript"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/webhook"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 10 * time.Second
	dispatchName    = "dispatch"
)

type Fleetcomm struct {
	Store             *store.Store
	MinioClient       *minio.MinioClient
	KafkaProducer     *kafka.Producer
	KafkaConsumer     *kafka.Consumer
	DispatchHandler   *kafka.DispatchHandler
	DispatchPool      *ants.Pool
	WebhookPool       *ants.Pool
	DriverService     *driver.DriverService
	CampaignService   *campaign.CampaignService
	Dispatcher        *campaign.Dispatcher
	DeadLetterService *deadletter.DeadLetterService
	DeadLetterWorker  *deadletter.DeadLetterWorker
	Healthchecker     *healthchecker.Healthchecker
	Server            *api.Server

	stopBackground context.CancelFunc
}

// NewApp wires every service from config.Conf. Dispatches and webhook processing
// run on a context derived from parent that shutdown cancels once HTTP has
// drained, so in-flight local dispatches abort like Kafka-driven ones.
func NewApp(parent context.Context) (*Fleetcomm, error) {
	logging.Logger.Info("[NewApp] Initializing fleetcomm application...")

	background, stopBackground := context.WithCancel(parent)

	app, err := newApp(background)
	if err != nil {
		stopBackground()
		return nil, err
	}

	app.stopBackground = stopBackground

	return app, nil
}

func newApp(background context.Context) (*Fleetcomm, error) {
	circuitbreak.Init()

	fleetStore, err := NewStore()
	if err != nil {
		return nil, err
	}

	app := &Fleetcomm{Store: fleetStore}

	sender := provider.New()
	summary := summarizer.NewClient()

	err = app.initializeKafkaProducer()
	if err != nil {
		return nil, err
	}

	var events campaign.EventPublisher
	if app.KafkaProducer != nil {
		events = app.KafkaProducer
	}

	recordingService, err := app.initializeRecordings(fleetStore, sender)
	if err != nil {
		return nil, err
	}

	app.DriverService = driver.NewService(fleetStore)
	app.CampaignService = campaign.NewService(fleetStore, events)
	app.Dispatcher = campaign.NewDispatcher(app.CampaignService, app.DriverService, sender)

	transcriptService := transcript.NewService(fleetStore)
	webhookHandler := webhook.NewHandler(app.CampaignService, recordingService, transcriptService, summary)

	app.DeadLetterService = deadletter.NewService(deadletter.NewRepository(fleetStore), webhookHandler)

	app.DeadLetterWorker, err = deadletter.NewWorker(app.DeadLetterService)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create dead letter worker", zap.String("error", err.Error()))
		return nil, err
	}

	// Collections register in their service constructors, so Init runs after them.
	err = fleetStore.Init(background)
	if err != nil {
		logging.Logger.Warn("[NewApp] Store loaded partially", zap.String("error", err.Error()))
	}

	err = app.initializePools()
	if err != nil {
		return nil, err
	}

	err = app.initializeKafkaConsumer()
	if err != nil {
		return nil, err
	}

	presets, err := preset.Load()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to load message presets", zap.String("error", err.Error()))
		return nil, err
	}

	app.Healthchecker = healthchecker.NewService(
		healthchecker.StoreComponent(fleetStore.Backend),
		healthchecker.ProviderComponent(sender),
		healthchecker.SummarizerComponent(summary),
		healthchecker.MinioComponent(app.MinioClient),
		healthchecker.KafkaComponent(app.KafkaProducer),
	)

	var commander api.DispatchCommander
	if app.KafkaProducer != nil {
		commander = app.KafkaProducer
	}

	app.Server = api.NewServer(background, api.Dependencies{
		DriverService:     app.DriverService,
		CampaignService:   app.CampaignService,
		Dispatcher:        app.Dispatcher,
		RecordingService:  recordingService,
		TranscriptService: transcriptService,
		WebhookHandler:    webhookHandler,
		DeadLetterService: app.DeadLetterService,
		Provider:          sender,
		Summarizer:        summary,
		Presets:           presets,
		Healthchecker:     app.Healthchecker,
		DispatchCommander: commander,
		DispatchPool:      app.DispatchPool,
		WebhookPool:       app.WebhookPool,
	})

	logging.Logger.Info("[NewApp] fleetcomm application initialized",
		zap.String("store", fleetStore.Backend.Name()),
		zap.Bool("twilio", sender.Configured()),
		zap.Bool("openai", summary.Configured()),
		zap.Bool("kafka", app.KafkaProducer != nil),
		zap.Bool("minio", app.MinioClient != nil),
	)

	return app, nil
}

// NewStore opens the configured backend. Collections are registered by the
// services built on top of it.
func NewStore() (*store.Store, error) {
	if config.Conf.StoreBackend == config.BackendMemory {
		logging.Logger.Warn("[NewApp] Using in-memory store, data is lost on restart")
		return store.New(store.NewMemoryBackend()), nil
	}

	dbConn, err := database.NewDatabase()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize database", zap.String("error", err.Error()))
		return nil, err
	}

	backend, err := store.NewGormBackend(dbConn, config.Conf.StoreBackend == config.BackendSqlite)
	if err != nil {
		return nil, err
	}

	logging.Logger.Info("[NewApp] Database connection established", zap.String("backend", backend.Name()))

	return store.New(backend), nil
}

func (app *Fleetcomm) initializeKafkaProducer() error {
	if !config.Conf.KafkaConfigured() {
		return nil
	}

	producer, err := kafka.NewProducer()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create Kafka producer", zap.String("error", err.Error()))
		return err
	}

	app.KafkaProducer = producer

	return nil
}

func (app *Fleetcomm) initializeKafkaConsumer() error {
	if !config.Conf.KafkaConfigured() {
		return nil
	}

	consumer, err := kafka.NewConsumer(config.Conf.KafkaDispatchGroupID, dispatchName)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create Kafka dispatch consumer", zap.String("error", err.Error()))
		return err
	}

	app.KafkaConsumer = consumer
	app.DispatchHandler = kafka.NewDispatchHandler(app.Dispatcher, app.DispatchPool)

	return nil
}

// initializeRecordings archives completed recordings to MinIO when it is configured.
func (app *Fleetcomm) initializeRecordings(fleetStore *store.Store, sender provider.Provider) (*recording.RecordingService, error) {
	if !config.Conf.MinioConfigured() {
		return recording.NewService(fleetStore, sender, nil), nil
	}

	minioClient, err := minio.NewMinioClient()
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to initialize MinIO client", zap.String("error", err.Error()))
		return nil, err
	}

	app.MinioClient = minioClient

	return recording.NewService(fleetStore, sender, minioClient), nil
}

func (app *Fleetcomm) initializePools() error {
	logging.Logger.Info("[NewApp] Creating worker pools",
		zap.Int("dispatch_pool_size", config.Conf.DispatchPoolSize),
		zap.Int("webhook_pool_size", config.Conf.WebhookPoolSize),
	)

	dispatchPool, err := ants.NewPool(config.Conf.DispatchPoolSize)
	if err != nil {
		logging.Logger.Error("[NewApp] Failed to create dispatch pool", zap.String("error", err.Error()))
		return err
	}

	// Callbacks past capacity go to the dead-letter ledger instead of holding the HTTP response.
	webhookPool, err := ants.NewPool(config.Conf.WebhookPoolSize, ants.WithPreAlloc(true), ants.WithNonblocking(true))
	if err != nil {
		dispatchPool.Release()
		logging.Logger.Error("[NewApp] Failed to create webhook pool", zap.String("error", err.Error()))

		return err
	}

	app.DispatchPool = dispatchPool
	app.WebhookPool = webhookPool

	return nil
}

// Run starts the background workers and serves HTTP until ctx is done.
func (app *Fleetcomm) Run(ctx context.Context) error {
	logging.Logger.Info("[Run] Starting app goroutines...")

	go prometheus.Run(ctx)
	go app.Healthchecker.Monitor(ctx)
	go app.DeadLetterWorker.Run(ctx)

	if app.KafkaConsumer != nil {
		logging.Logger.Info("[Run] Starting Kafka dispatch consumer",
			zap.String("topic", config.Conf.KafkaDispatchTopic),
		)

		go func() {
			_ = app.KafkaConsumer.Consume(ctx, config.Conf.KafkaDispatchTopic, app.DispatchHandler.HandleMessage)
		}()
	}

	err := app.Server.Run(ctx)

	app.shutdown()

	return err
}

func (app *Fleetcomm) shutdown() {
	logging.Logger.Info("[shutdown] Shutting down application...")

	app.stopBackground()

	err := app.DispatchPool.ReleaseTimeout(shutdownTimeout)
	if err != nil {
		logging.Logger.Warn("[shutdown] Dispatch pool did not drain", zap.String("error", err.Error()))
	}

	err = app.WebhookPool.ReleaseTimeout(shutdownTimeout)
	if err != nil {
		logging.Logger.Warn("[shutdown] Webhook pool did not drain", zap.String("error", err.Error()))
	}

	err = app.DeadLetterWorker.Release(shutdownTimeout)
	if err != nil {
		logging.Logger.Warn("[shutdown] Dead letter pool did not drain", zap.String("error", err.Error()))
	}

	if app.KafkaConsumer != nil {
		_ = app.KafkaConsumer.Close()
	}

	if app.KafkaProducer != nil {
		_ = app.KafkaProducer.Close()
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = app.Store.Flush(flushCtx)
	if err != nil {
		logging.Logger.Error("[shutdown] Failed to flush store", zap.String("error", err.Error()))
	}

	err = app.Store.Close()
	if err != nil {
		logging.Logger.Error("[shutdown] Failed to close store", zap.String("error", err.Error()))
	}

	logging.Logger.Info("[shutdown] Application shut down")
}

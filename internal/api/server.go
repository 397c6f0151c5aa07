package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/campaign"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/deadletter"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/driver"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/healthchecker"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/logging"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/preset"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/provider"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/recording"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/summarizer"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/transcript"
	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/webhook"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// DispatchCommander hands started campaigns to out-of-process dispatchers.
type DispatchCommander interface {
	SendDispatchCommand(ctx context.Context, campaignID string) error
}

type Dependencies struct {
	DriverService     *driver.DriverService
	CampaignService   *campaign.CampaignService
	Dispatcher        *campaign.Dispatcher
	RecordingService  *recording.RecordingService
	TranscriptService *transcript.TranscriptService
	WebhookHandler    *webhook.WebhookHandler
	DeadLetterService *deadletter.DeadLetterService
	Provider          provider.Provider
	Summarizer        summarizer.Summarizer
	Presets           *preset.Catalog
	Healthchecker     *healthchecker.Healthchecker
	DispatchCommander DispatchCommander
	DispatchPool      *ants.Pool
	WebhookPool       *ants.Pool
}

type Server struct {
	Dependencies

	Router   chi.Router
	validate *validator.Validate

	// background outlives requests; dispatches and webhook processing run on it.
	background context.Context
}

func NewServer(background context.Context, deps Dependencies) *Server {
	server := &Server{
		Dependencies: deps,
		validate:     validator.New(),
		background:   background,
	}

	server.Router = server.routes()

	return server
}

func (server *Server) routes() chi.Router {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger)
	router.Use(middleware.Recoverer)

	router.Route("/api", func(r chi.Router) {
		r.Get("/health", server.health)
		r.Get("/stats", server.overallStats)

		r.Get("/campaigns", server.listCampaigns)
		r.Post("/campaigns", server.createCampaign)
		r.Put("/campaigns", server.updateCampaign)
		r.Get("/campaigns/{id}", server.getCampaign)
		r.Get("/campaigns/{id}/stats", server.campaignStats)
		r.Post("/campaigns/{id}/start", server.startCampaign)

		r.Get("/drivers", server.listDrivers)
		r.Post("/drivers", server.addDrivers)

		r.Get("/recordings", server.recordings)
		r.Get("/transcripts", server.transcripts)

		r.Post("/send-sms", server.sendTest)
		r.Get("/templates", server.templates)
		r.Post("/templates/generate", server.generateTemplate)
	})

	router.Route("/twilio", func(r chi.Router) {
		r.Post("/status", server.acknowledge(webhook.KindStatus))
		r.Post("/call-status", server.acknowledge(webhook.KindStatus))
		r.Post("/transcriptions", server.acknowledge(webhook.KindTranscriptionEvent))
		r.Post("/transcription", server.acknowledge(webhook.KindTranscription))
		r.Post("/recording", server.recordingCallback)
		r.Get("/voice", server.voice)
		r.Post("/voice", server.voice)
	})

	return router
}

// Run serves HTTP until ctx is done, then drains in-flight requests.
func (server *Server) Run(ctx context.Context) error {
	timeout := time.Duration(config.Conf.HTTPTimeout) * time.Second

	httpServer := &http.Server{
		Addr:              ":" + config.Conf.HTTPPort,
		Handler:           server.Router,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: timeout,
		WriteTimeout:      timeout,
		IdleTimeout:       timeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		logging.Logger.Info("start http server on port " + config.Conf.HTTPPort)
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		logging.Logger.Error("http server failed", zap.String("error", err.Error()))

		return err
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), time.Duration(config.Conf.HTTPDrainTimeout)*time.Second)
	defer cancel()

	logging.Logger.Info("draining http server")

	err := httpServer.Shutdown(drainCtx)
	if err != nil {
		logging.Logger.Error("failed to drain http server", zap.String("error", err.Error()))
		return err
	}

	return nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(wrapped, r)

		logging.Logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.Status()),
			zap.Duration("duration", time.Since(started)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

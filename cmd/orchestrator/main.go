package main

import (
	"flag"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/psantana5/runner-orchestrator/pkg/api"
	"github.com/psantana5/runner-orchestrator/pkg/config"
	"github.com/psantana5/runner-orchestrator/pkg/engine"
	"github.com/psantana5/runner-orchestrator/pkg/ffprobe"
	"github.com/psantana5/runner-orchestrator/pkg/handlers"
	"github.com/psantana5/runner-orchestrator/pkg/logging"
	"github.com/psantana5/runner-orchestrator/pkg/metrics"
	"github.com/psantana5/runner-orchestrator/pkg/notify"
	"github.com/psantana5/runner-orchestrator/pkg/objstore"
	"github.com/psantana5/runner-orchestrator/pkg/shutdown"
	"github.com/psantana5/runner-orchestrator/pkg/store"
	"github.com/psantana5/runner-orchestrator/pkg/transcode"
	"github.com/psantana5/runner-orchestrator/pkg/transcoding"
	"github.com/psantana5/runner-orchestrator/pkg/transcript"
	"github.com/psantana5/runner-orchestrator/pkg/videostate"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	log.Println("Starting runner orchestrator")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)

	db, err := store.NewStore(store.Config{
		Type: cfg.Database.Type,
		DSN:  cfg.Database.DSN,
		Path: cfg.Database.Path,
	})
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}

	storage := objstore.NewFSStorage(cfg.Storage.Root, cfg.Server.BaseURL+"/static")
	prober := ffprobe.NewCommandProber()

	var notifier engine.Notifier
	switch cfg.Notify.Mode {
	case "webhook":
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL, logger)
	case "none":
		notifier = notify.Noop{}
	default:
		notifier = notify.NewLog(logger)
	}

	eng := engine.New(db, notifier, logger, cfg.Jobs.MaxFailures)
	videos := videostate.New(db, logger, videostate.Callbacks{})
	playlists := transcoding.NewHLSPlaylist(db, storage, prober, logger)

	set := handlers.Register(eng, handlers.Deps{
		Store:     db,
		Storage:   storage,
		Prober:    prober,
		Videos:    videos,
		Playlists: playlists,
		Logger:    logger,
		Languages: cfg.Jobs.TranscriptionLanguages,
	})

	planner := transcoding.PlannerConfig{
		EnabledResolutions:      cfg.Transcoding.EnabledResolutions(),
		AlwaysTranscodeOriginal: cfg.Transcoding.AlwaysTranscodeOriginalResolution,
		FPS: transcoding.FPSConfig{
			Min:                     cfg.Transcoding.FPSMin,
			Max:                     cfg.Transcoding.FPSMax,
			Average:                 cfg.Transcoding.FPSAverage,
			KeepOriginMinResolution: cfg.Transcoding.FPSKeepOriginMinResolution,
			Standard:                transcoding.DefaultFPSConfig().Standard,
			HDStandard:              transcoding.DefaultFPSConfig().HDStandard,
		},
	}

	transcoder := transcode.New(db, storage, prober, set.HLS, planner, logger)
	transcripter := transcript.New(db, set.Transcription, logger)

	exporter := metrics.NewExporter(db)

	handler := api.NewHandler(db, eng, storage, logger)
	handler.SetMetricsRecorder(exporter)
	pipeline := api.NewPipelineHandler(transcoder, transcripter, cfg.Server.BaseURL, logger)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)
	pipeline.RegisterRoutes(router)
	router.Handle("/metrics", exporter).Methods("GET")
	router.PathPrefix("/static/").Handler(
		http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.Storage.Root))))

	srv := &http.Server{
		Addr:         cfg.Server.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	manager := shutdown.New(30 * time.Second)
	manager.Register(shutdown.CloseResource(db, "store"))
	manager.Register(shutdown.StopHTTPServer(srv, "orchestrator"))

	go func() {
		log.Printf("Orchestrator listening on %s", cfg.Server.ListenAddr)
		log.Println("API endpoints:")
		log.Println("  POST   /api/v1/runners/register")
		log.Println("  POST   /api/v1/runners/unregister")
		log.Println("  POST   /api/v1/runners/jobs/request")
		log.Println("  POST   /api/v1/runners/jobs/{uuid}/accept")
		log.Println("  POST   /api/v1/runners/jobs/{uuid}/update")
		log.Println("  POST   /api/v1/runners/jobs/{uuid}/error")
		log.Println("  POST   /api/v1/runners/jobs/{uuid}/abort")
		log.Println("  POST   /api/v1/runners/jobs/{uuid}/success")
		log.Println("  POST   /api/v1/runners/jobs/files/videos/{video}/{job}/max-quality")
		log.Println("  GET    /metrics")
		log.Println("  GET    /health")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	manager.Wait()
	manager.Shutdown()
}

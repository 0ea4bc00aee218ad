package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/roomrec/internal/config"
	"github.com/jmylchreest/roomrec/internal/database"
	"github.com/jmylchreest/roomrec/internal/database/migrations"
	"github.com/jmylchreest/roomrec/internal/encoder"
	internalhttp "github.com/jmylchreest/roomrec/internal/http"
	"github.com/jmylchreest/roomrec/internal/http/handlers"
	"github.com/jmylchreest/roomrec/internal/postproc"
	"github.com/jmylchreest/roomrec/internal/recording"
	"github.com/jmylchreest/roomrec/internal/repository"
	"github.com/jmylchreest/roomrec/internal/scheduler"
	"github.com/jmylchreest/roomrec/internal/signalling"
	"github.com/jmylchreest/roomrec/internal/startup"
	"github.com/jmylchreest/roomrec/internal/storage"
	"github.com/jmylchreest/roomrec/internal/upload"
	"github.com/jmylchreest/roomrec/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the roomrec server",
	Long: `Start the roomrec recording server.

The server provides:
- the legacy /record form endpoints that drive recording rooms
- a JSON status API under /api/v1 (rooms, recordings, health, version)
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 9002, "Port to listen on")
	serveCmd.Flags().String("database", "", "Database DSN (default roomrec.db)")
	serveCmd.Flags().String("recordings-root", "", "Recordings root directory (default ~/recordings)")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyServeFlags(cmd, cfg)

	// Database and catalog.
	db, err := database.New(cfg.Database, logger, nil)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	migrator := migrations.NewMigrator(db.DB, logger)
	migrator.RegisterAll(migrations.AllMigrations())
	if err := migrator.Up(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	repo := repository.NewRecordingRepository(db.DB)

	// Recording store; sweep scratch from a previous run before anything
	// can start writing.
	store, err := storage.NewStore(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing recording store: %w", err)
	}
	if _, err := startup.CleanupScratchFiles(logger, store.Root()); err != nil {
		logger.Warn("cleaning scratch files from previous run",
			slog.String("error", err.Error()))
	}

	// Gateway signalling.
	sigClient, err := signalling.NewClient(cfg.Signalling, logger)
	if err != nil {
		return fmt.Errorf("initializing signalling client: %w", err)
	}
	defer sigClient.Close()
	ports := signalling.NewPortPool(cfg.Signalling.PortRangeMin, cfg.Signalling.PortRangeMax)

	// FFmpeg toolchain.
	bins, err := encoder.FindBinaries(cfg.FFmpeg)
	if err != nil {
		return err
	}
	logger.Info("resolved encoder binaries",
		slog.String("ffmpeg", bins.FFmpeg),
		slog.String("ffprobe", bins.FFprobe))

	supervisor := encoder.NewSupervisor(cfg.Recording.StopGrace, logger)
	launcher := recording.SupervisorLauncher{Supervisor: supervisor}
	prober := encoder.NewProber(bins.FFprobe)
	pipeline := postproc.NewPipeline(launcher, prober, store, bins.FFmpeg, cfg.Recording.OutputWait, logger)
	uploader := upload.NewClient(cfg.Upload, logger)

	manager := recording.NewManager(recording.ManagerConfig{
		Signalling:    sigClient,
		Ports:         ports,
		Store:         store,
		Launcher:      launcher,
		PostProcessor: pipeline,
		Uploader:      uploader,
		Repository:    repo,
		Recording:     cfg.Recording,
		SignallingCfg: cfg.Signalling,
		FFmpegPath:    bins.FFmpeg,
		HWPriority:    cfg.FFmpeg.HWAccelPriority,
		Logger:        logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go manager.Run(ctx)

	// Retention sweep.
	if cfg.Retention.Enabled {
		sweeper := scheduler.NewSweeper(cfg.Retention, repo, store).WithLogger(logger)
		if err := sweeper.Start(ctx); err != nil {
			return fmt.Errorf("starting retention sweeper: %w", err)
		}
		defer sweeper.Stop()
	}

	// HTTP surface.
	serverConfig := internalhttp.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	if cfg.Server.ReadTimeout > 0 {
		serverConfig.ReadTimeout = cfg.Server.ReadTimeout
	}
	if cfg.Server.WriteTimeout > 0 {
		serverConfig.WriteTimeout = cfg.Server.WriteTimeout
	}
	if cfg.Server.ShutdownTimeout > 0 {
		serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout
	}
	serverConfig.CORSOrigins = cfg.Server.CORSOrigins
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	recordHandler := handlers.NewRecordHandler(manager, logger)
	recordHandler.RegisterRoutes(server.Router())
	recordHandler.DocumentRoutes(server.API())

	handlers.NewRoomsHandler(manager).Register(server.API())
	handlers.NewRecordingsHandler(repo).Register(server.API())
	handlers.NewVersionHandler().Register(server.API())
	handlers.NewHealthHandler(version.Version).
		WithDB(db.DB).
		WithManager(manager).
		WithStore(store).
		Register(server.API())

	// Graceful shutdown on SIGINT/SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting roomrec server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("recordings_root", store.Root()),
		slog.String("version", version.Version))

	err = server.ListenAndServe(ctx)

	// Interrupt any live captures so no encoder children are orphaned.
	manager.StopAll(context.Background())
	return err
}

// applyServeFlags overrides config values with explicitly set CLI flags.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("host") {
		cfg.Server.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port, _ = cmd.Flags().GetInt("port")
	}
	if cmd.Flags().Changed("database") {
		cfg.Database.DSN, _ = cmd.Flags().GetString("database")
	}
	if cmd.Flags().Changed("recordings-root") {
		cfg.Storage.Root, _ = cmd.Flags().GetString("recordings-root")
	}
}

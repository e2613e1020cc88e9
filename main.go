package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"vivaly-settlement/cmd"
	"vivaly-settlement/internal/data/repository"
	"vivaly-settlement/internal/scheduler"
	"vivaly-settlement/internal/wire"
	"vivaly-settlement/pkg/broker"
	"vivaly-settlement/pkg/database"
	"vivaly-settlement/pkg/processor"
	"vivaly-settlement/pkg/utils"

	"go.uber.org/zap"
)

func main() {
	config, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.InitLogger(config.App.LogPath, config.App.Name, config.App.Debug)
	if err != nil {
		log.Printf("Failed to init logger: %v. Using standard log.", err)
		logger, _ = zap.NewProduction()
	}
	defer logger.Sync()

	logger.Info("Starting application",
		zap.String("app", config.App.Name),
		zap.String("port", config.App.Port),
		zap.Bool("debug", config.App.Debug),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.InitDB(ctx, config.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	logger.Info("Database connected successfully")

	if config.Database.AutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			logger.Fatal("Failed to apply schema", zap.Error(err))
		}
		logger.Info("Database schema applied")
	}

	repos := repository.NewRepository(db, logger)

	events := broker.Connect(config.Broker.URL, config.Broker.Exchange, logger)
	defer events.Close()

	proc := processor.NewClient(config.Processor.BaseURL, config.Processor.APIKey, config.Processor.Timeout)

	app := wire.Wiring(repos, config, proc, events, logger)

	var sched *scheduler.Scheduler
	if config.Scheduler.Enabled {
		sched = scheduler.New(app.Service.Release, config.Scheduler.ReleaseSweepSchedule, logger)
		if err := sched.Start(); err != nil {
			logger.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	if err := cmd.APIServer(ctx, app.Router, config.App.Port, config.App.ShutdownTimeout, logger); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}

	if sched != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), config.App.ShutdownTimeout)
		if err := sched.Stop(stopCtx); err != nil {
			logger.Warn("Scheduler did not stop cleanly", zap.Error(err))
		}
		cancel()
	}

	logger.Info("Shutdown complete")
}

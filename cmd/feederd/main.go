// feederd is the controller process: it serves the job submission HTTP
// endpoint and runs the state-change ingestion, stale-job sweep and
// autoscaler loops.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/bobmcallan/nommer/internal/common"
	"github.com/bobmcallan/nommer/internal/compute"
	"github.com/bobmcallan/nommer/internal/controller"
	"github.com/bobmcallan/nommer/internal/encoder"
	"github.com/bobmcallan/nommer/internal/store/surreal"
)

func main() {
	configPath := os.Getenv("NOMMER_CONFIG")
	cfg, err := common.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := common.NewLogger(cfg.Logging.Level)

	db, err := surreal.Connect(context.Background(), cfg.Surreal)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to SurrealDB")
	}

	comp, err := newCompute(cfg.Compute, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize compute client")
	}

	c := controller.New(controller.Deps{
		Jobs:         surreal.NewJobStore(db, logger),
		Nodes:        surreal.NewNodeStore(db, logger),
		NewJobQueue:  surreal.NewQueue(db, logger, "new_job_queue"),
		StateChangeQ: surreal.NewQueue(db, logger, "state_change_queue"),
		Compute:      comp,
		Encoders:     encoder.DefaultRegistry(),
		Logger:       logger,
		Config:       cfg.Jobs,
	})

	common.PrintBanner("feederd", cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start controller")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      buildMux(c),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Int("port", cfg.Server.Port).Msg("starting submit HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	c.Stop()
	common.PrintShutdownBanner("feederd", logger)
}

func buildMux(c *controller.Controller) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/job/submit", c.SubmitHandler)
	return mux
}

func newCompute(cfg common.ComputeConfig, logger *common.Logger) (compute.Compute, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	client := ec2.NewFromConfig(awsCfg)
	return compute.NewEC2Compute(client, cfg, logger), nil
}

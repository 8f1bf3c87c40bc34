// nommerd is the worker process: it tails NewJobQueue, runs the
// encoding pipeline, heartbeats to NodeStore, and self-terminates when
// idle past idle_threshold.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"
	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/bobmcallan/nommer/internal/common"
	"github.com/bobmcallan/nommer/internal/compute"
	"github.com/bobmcallan/nommer/internal/encoder"
	"github.com/bobmcallan/nommer/internal/node"
	"github.com/bobmcallan/nommer/internal/storageuri"
	"github.com/bobmcallan/nommer/internal/store/surreal"
	"github.com/bobmcallan/nommer/internal/worker"
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

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(cfg.Compute.Region))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load AWS config")
	}

	imdsResolver := node.NewIMDSResolver(imds.NewFromConfig(awsCfg))
	nodeID, err := node.Resolve(context.Background(), imdsResolver, cfg.Compute)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve node identity")
	}

	comp := compute.NewEC2Compute(ec2.NewFromConfig(awsCfg), cfg.Compute, logger)

	w := worker.New(worker.Deps{
		Jobs:         surreal.NewJobStore(db, logger),
		Nodes:        surreal.NewNodeStore(db, logger),
		NewJobQueue:  surreal.NewQueue(db, logger, "new_job_queue"),
		StateChangeQ: surreal.NewQueue(db, logger, "state_change_queue"),
		Storage:      storageuri.DefaultRegistry(),
		Encoders:     encoder.DefaultRegistry(),
		Compute:      comp,
		Logger:       logger,
		Config:       cfg.Jobs,
		NodeID:       nodeID,
	})

	common.PrintBanner("nommerd", cfg, logger)
	logger.Info().Str("node_id", nodeID).Msg("worker identity resolved")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutdown signal received")
	w.Stop()
	common.PrintShutdownBanner("nommerd", logger)
}

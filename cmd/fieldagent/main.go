package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/config"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/offline"
	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/syncer"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

const usage = `usage: fieldagent <command> [flags]

commands:
  run        keep syncing in the background (default)
  sync       drain the queue once
  status     print the number of pending items
  add-job    queue a job creation
  add-photo  queue a photo upload`

func main() {
	if err := config.LoadEnv(".env"); err != nil {
		log.Fatalf("failed to load environment variables: %s", err.Error())
	}

	cfg, err := config.LoadAgent(".")
	if err != nil {
		log.Fatalf("failed to initialize config: %s", err.Error())
	}

	logger, err := newLogger(cfg.LogOutputPaths)
	if err != nil {
		log.Fatalf("failed to create zap logger: %s", err.Error())
	}
	defer logger.Sync()

	queue, err := offline.Open(cfg.QueuePath, cfg.UserID)
	if err != nil {
		logger.Sugar().Fatalf("failed to open offline queue(%s): %s", cfg.QueuePath, err.Error())
	}
	defer queue.Close()

	engine := syncer.New(
		logger,
		queue,
		syncer.NewAPIClient(cfg.APIBaseURL, cfg.APIToken, nil),
		syncer.NewHTTPProbe(cfg.APIBaseURL, cfg.ProbeTimeout),
		syncer.Options{
			ItemTimeout: cfg.ItemTimeout,
			BackoffBase: cfg.BackoffBase,
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cmd, args := "run", []string(nil)
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	switch cmd {
	case "run":
		err = run(ctx, logger, cfg, queue, engine)
	case "sync":
		err = syncOnce(ctx, queue, engine)
	case "status":
		err = printStatus(ctx, queue)
	case "add-job":
		err = addJob(ctx, queue, args)
	case "add-photo":
		err = addPhoto(ctx, queue, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logger.Sugar().Errorf("%s failed: %s", cmd, err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, cfg *config.AgentConfig, queue *offline.Queue, engine *syncer.Engine) error {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}

	if _, err := scheduler.NewJob(
		gocron.DurationJob(cfg.SyncInterval),
		gocron.NewTask(func() { engine.Trigger("interval") }),
	); err != nil {
		return fmt.Errorf("scheduling sync: %w", err)
	}

	if _, err := scheduler.NewJob(
		gocron.DurationJob(time.Hour),
		gocron.NewTask(func(ctx context.Context) {
			n, err := queue.PurgeSynced(ctx, time.Now().Add(-cfg.PurgeAfter))
			if err != nil {
				logger.Sugar().Errorf("failed to purge synced mutations: %s", err.Error())
				return
			}
			if n > 0 {
				logger.Sugar().Infof("purged %d synced mutations", n)
			}
		}),
	); err != nil {
		return fmt.Errorf("scheduling purge: %w", err)
	}

	scheduler.Start()
	defer scheduler.Shutdown()

	go engine.Start(ctx)
	go engine.WatchConnectivity(ctx, cfg.ProbeInterval)

	// SIGUSR1 is the "sync now" button
	manual := make(chan os.Signal, 1)
	signal.Notify(manual, syscall.SIGUSR1)
	defer signal.Stop(manual)

	engine.Trigger("startup")
	logger.Sugar().Infof("Field agent started for user(%s)", cfg.UserID)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Field agent shutting down")
			return nil
		case <-manual:
			engine.Trigger("manual")
		}
	}
}

func syncOnce(ctx context.Context, queue *offline.Queue, engine *syncer.Engine) error {
	res, err := engine.Run(ctx)
	if err != nil {
		return err
	}

	counts, err := queue.CountUnsynced(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%d synced, %d failed, %d backing off; %s\n", res.Success, res.Failed, res.Skipped, counts)
	return nil
}

func printStatus(ctx context.Context, queue *offline.Queue) error {
	counts, err := queue.CountUnsynced(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%d jobs, %d photos)\n", counts, counts.Jobs, counts.Photos)
	return nil
}

func addJob(ctx context.Context, queue *offline.Queue, args []string) error {
	fs := flag.NewFlagSet("add-job", flag.ExitOnError)
	building := fs.String("building", "", "building id")
	title := fs.String("title", "", "job title")
	description := fs.String("description", "", "job description")
	assignee := fs.String("assignee", "", "assignee user id")
	fs.Parse(args)

	if *building == "" || *title == "" {
		return fmt.Errorf("-building and -title are required")
	}

	m := &model.OfflineMutation{
		Payload: &model.JobCreatePayload{
			BuildingID:  *building,
			Title:       *title,
			Description: *description,
			AssigneeID:  *assignee,
		},
	}
	if err := queue.Append(ctx, m); err != nil {
		return err
	}
	fmt.Printf("queued %s %s\n", m.Kind, m.ID)
	return nil
}

func addPhoto(ctx context.Context, queue *offline.Queue, args []string) error {
	fs := flag.NewFlagSet("add-photo", flag.ExitOnError)
	job := fs.String("job", "", "job id")
	file := fs.String("file", "", "path to the photo")
	caption := fs.String("caption", "", "photo caption")
	fs.Parse(args)

	if *job == "" || *file == "" {
		return fmt.Errorf("-job and -file are required")
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		return err
	}
	info, err := os.Stat(*file)
	if err != nil {
		return err
	}

	contentType := mime.TypeByExtension(filepath.Ext(*file))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	m := &model.OfflineMutation{
		Payload: &model.PhotoUploadPayload{
			JobID:       *job,
			FileName:    filepath.Base(*file),
			ContentType: contentType,
			Data:        data,
			Caption:     *caption,
			TakenAt:     info.ModTime().UTC(),
		},
	}
	if err := queue.Append(ctx, m); err != nil {
		return err
	}
	fmt.Printf("queued %s %s\n", m.Kind, m.ID)
	return nil
}

func newLogger(outputPaths []string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = outputPaths
	return cfg.Build()
}

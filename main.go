package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quizscout/config"
	"quizscout/extract"
	"quizscout/geocode"
	"quizscout/httputil"
	"quizscout/images"
	"quizscout/jobs"
	"quizscout/logging"
	"quizscout/models"
	"quizscout/queue"
	"quizscout/scheduler"
	"quizscout/services"
	"quizscout/storage"
	"quizscout/workers"
)

var (
	sourceFlag  = flag.String("source", "", "Enqueue one index job for this source and exit")
	limitFlag   = flag.Int("limit", 0, "Schedule at most N venues (with -source)")
	forceImages = flag.Bool("force-refresh-images", false, "Re-download images even when already stored")
	forceUpdate = flag.Bool("force-update", false, "Re-process venues even when recently seen")
	scrapeAll   = flag.Bool("scrape", false, "Enqueue index jobs for all sources and exit")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("daemon.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting quizscout...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Loaded %d source configs", len(cfg.Sources))
	for id, src := range cfg.Sources {
		log.Printf("  - %s (%s, handler=%s)", src.Name, id, src.Handler)
	}

	ctx := context.Background()

	// Postgres holds the domain data; without it nothing can run.
	pgStore, err := storage.NewPostgresStore(ctx, cfg.Postgres.URL)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pgStore.Close()
	log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.Postgres.URL))

	// SQLite holds the job queue and operator commands.
	sqliteStore, err := storage.NewSQLiteStore(cfg.QueueDB)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("Queue database: %s", cfg.QueueDB)

	fetchTimeout := time.Duration(cfg.Scraper.FetchTimeoutMS) * time.Millisecond
	client := httputil.New(cfg.Scraper.ProxyURL, fetchTimeout)

	sources := make(map[string]extract.Source, len(cfg.Sources))
	for id, srcCfg := range cfg.Sources {
		src, err := extract.New(srcCfg, client)
		if err != nil {
			log.Fatalf("Failed to build source %s: %v", id, err)
		}
		sources[id] = src
	}

	var imageFiles images.FileStore
	if cfg.S3.Bucket != "" {
		s3Store, err := storage.NewS3ImageStore(ctx, cfg.S3)
		if err != nil {
			log.Fatalf("Failed to init S3 image store: %v", err)
		}
		imageFiles = s3Store
		log.Printf("Image storage: s3://%s", cfg.S3.Bucket)
	} else {
		localStore, err := storage.NewLocalImageStore(cfg.Images.Dir)
		if err != nil {
			log.Fatalf("Failed to init image dir: %v", err)
		}
		imageFiles = localStore
		log.Printf("Image storage: %s", cfg.Images.Dir)
	}

	venueService := services.NewVenueService(pgStore)
	imageService := images.NewService(imageFiles, pgStore, client)
	geocoder := geocode.NewClient(client, cfg.Geocode)
	if !geocoder.Enabled() {
		log.Println("No geocode API key, venues will not be geocoded")
	}

	q := queue.New(sqliteStore)
	limiter := jobs.NewLimiter(cfg.Scraper.MaxPerHour)
	indexRunner := jobs.NewIndexRunner(sources, pgStore, q, limiter)
	detailRunner := jobs.NewDetailRunner(sources, client, venueService, imageService, geocoder, pgStore, pgStore)

	sched := scheduler.New(cfg, q, sqliteStore)

	// One-shot modes enqueue and exit; the daemon's workers pick the
	// jobs up.
	if *sourceFlag != "" {
		args := models.IndexJobArgs{
			SourceID:           *sourceFlag,
			Limit:              *limitFlag,
			ForceRefreshImages: *forceImages,
			ForceUpdate:        *forceUpdate,
		}
		if err := sched.EnqueueSource(args); err != nil {
			log.Printf("Failed to enqueue index job: %v", err)
			os.Exit(1)
		}
		log.Printf("Index job enqueued for %s", *sourceFlag)
		return
	}
	if *scrapeAll {
		if err := sched.EnqueueAll(models.IndexJobArgs{
			ForceRefreshImages: *forceImages,
			ForceUpdate:        *forceUpdate,
		}); err != nil {
			log.Printf("Failed to enqueue index jobs: %v", err)
			os.Exit(1)
		}
		log.Println("Index jobs enqueued for all sources")
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	spacing := time.Duration(cfg.Scraper.MinSpacingMS) * time.Millisecond
	pool := workers.NewPool(q, spacing)
	pool.Register(models.JobTypeIndex, func(ctx context.Context, job *models.Job) error {
		var args models.IndexJobArgs
		if err := unmarshalArgs(job, &args); err != nil {
			return queue.Terminal(err)
		}
		return indexRunner.Run(ctx, args)
	})
	pool.Register(models.JobTypeDetail, func(ctx context.Context, job *models.Job) error {
		var args models.DetailJobArgs
		if err := unmarshalArgs(job, &args); err != nil {
			return queue.Terminal(err)
		}
		return detailRunner.Run(ctx, args)
	})
	pool.AddQueue(models.QueueIndex, cfg.Scraper.IndexWorkers)
	pool.AddQueue(models.QueueDetail, cfg.Scraper.DetailWorkers)
	pool.Start(ctx)

	placePhotoWorker := workers.NewPlacePhotoWorker(pgStore, geocoder, imageService, cfg.Images.PlacePhotoMaxAge)
	go placePhotoWorker.Run(ctx)
	log.Println("Place photo worker started")

	sched.SetWorkers(pool, placePhotoWorker)
	if err := sched.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	sched.Stop()
	cancel()
	pool.Stop()
	log.Println("Goodbye!")
}

func unmarshalArgs(job *models.Job, v interface{}) error {
	if err := json.Unmarshal(job.Args, v); err != nil {
		return fmt.Errorf("unmarshal args for job %d: %w", job.ID, err)
	}
	return nil
}

// maskConnectionString masks the password in a connection string for logging
func maskConnectionString(connStr string) string {
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}

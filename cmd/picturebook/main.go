package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"

	"github.com/basel-ax/picturebook/internal/config"
	"github.com/basel-ax/picturebook/internal/infrastructure/pictureapi"
	"github.com/basel-ax/picturebook/internal/infrastructure/plotapi"
	"github.com/basel-ax/picturebook/internal/infrastructure/vertexai"
	"github.com/basel-ax/picturebook/internal/prompts"
	"github.com/basel-ax/picturebook/internal/repository"
	"github.com/basel-ax/picturebook/internal/service"
)

const (
	imagenPrompt = "A photorealistic image of a cookbook laying on a wooden kitchen table, the cover facing forward featuring a smiling family sitting at a similar table, soft overhead lighting illuminating the scene, the cookbook is the main focus of the image."
	geminiPrompt = "In a garden, two young children, Shiro-chan and Shiki-chan, are looking at a large, curled-up pill bug. Shiro-chan is pointing at the pill bug with a surprised expression, and Shiki-chan is gently explaining something to Shiro-chan. The scene should be drawn in a gentle, warm, and colorful children's picture book style, with no text in the image itself."
	requestPrompt = "Shiki-chan is the big brother of a six-year-old boy.Shiro-chan is his little sister, a one-year-old girl.They are siblings.One day, the two of them found a big pill bug in the garden.“Wow! It’s all curled up!” said Shiro-chan.“This is called a pill bug. It curls up into a ball when it gets scared,” Shiki-chan explained."
)

func main() {
	// Parse command line flags
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	runImagen := flag.Bool("imagen", false, "Generate an image with Imagen on Vertex AI")
	runGemini := flag.Bool("gemini", false, "Generate an image with Gemini native image output")
	runRequest := flag.Bool("request", false, "Request an image from the picture endpoint")
	runBook := flag.Bool("book", false, "Write and illustrate a picture book")
	runProcessor := flag.Bool("processor", false, "Process queued prompts continuously")
	runCron := flag.Bool("cron", false, "Process queued prompts on the CRON_SCHEDULE schedule")
	enqueueFile := flag.String("enqueue", "", "YAML file of prompts to add to the queue")
	prompt := flag.String("prompt", "", "Prompt for -imagen, -gemini or -request (defaults to a sample prompt)")
	out := flag.String("out", "", "Output file for -imagen, -gemini or -request")
	pages := flag.Int("pages", 4, "Number of pages for -book")
	theme := flag.String("theme", "", "Theme for -book")
	runListBooks := flag.Bool("books", false, "List saved books")
	deleteID := flag.String("delete-book", "", "Delete the saved book with this id")
	runDeleteOldest := flag.Bool("delete-oldest", false, "Delete the oldest saved book (with -book: only when the store is full)")
	flag.Parse()

	// Configure logging
	if *verbose {
		log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
		log.Println("Verbose logging enabled")
	} else {
		log.SetFlags(log.Ldate | log.Ltime)
	}

	manageBooks := *runListBooks || *deleteID != "" || *runDeleteOldest
	if !*runImagen && !*runGemini && !*runRequest && !*runBook && !*runProcessor && !*runCron && *enqueueFile == "" && !manageBooks {
		log.Fatal("Please specify at least one workflow to run: -imagen, -gemini, -request, -book, -processor, -cron, -enqueue, -books, -delete-book or -delete-oldest")
	}
	if err := checkOutFlag(*out, *runImagen, *runGemini, *runRequest); err != nil {
		log.Fatal(err)
	}

	log.Println("Loading configuration...")
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating shutdown...", sig)
		cancel()
	}()

	if *runImagen {
		runImagenWorkflow(ctx, cfg, firstNonEmpty(*prompt, imagenPrompt), outputPath(cfg, *out, "output.png"))
	}
	if *runGemini {
		runGeminiWorkflow(ctx, cfg, firstNonEmpty(*prompt, geminiPrompt), outputPath(cfg, *out, "gemini-native-image.png"))
	}
	if *runRequest {
		svc := service.NewImageGenerationService(cfg.Imagen, nil, nil, requestClient(cfg))
		if _, err := svc.RequestImage(ctx, firstNonEmpty(*prompt, requestPrompt), outputPath(cfg, *out, "received_image.png")); err != nil {
			log.Printf("Error: %v", err)
		}
	}

	if !*runBook && !*runProcessor && !*runCron && *enqueueFile == "" && !manageBooks {
		return
	}

	// Everything below persists to the database
	if err := cfg.ValidateDB(); err != nil {
		log.Fatalf("Invalid database configuration: %v", err)
	}
	db, err := openDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	imgRepo := repository.NewPostgresImageRepository(db)
	bookRepo := repository.NewPostgresBookRepository(db, cfg.MaxSavedBooks)
	if err := imgRepo.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to prepare schema: %v", err)
	}
	if err := bookRepo.EnsureSchema(ctx); err != nil {
		log.Fatalf("Failed to prepare schema: %v", err)
	}

	if *runListBooks {
		if _, err := listBooks(ctx, bookRepo); err != nil {
			log.Printf("Error: %v", err)
		}
	}
	if *deleteID != "" {
		if err := deleteBook(ctx, bookRepo, *deleteID); err != nil {
			log.Printf("Error: %v", err)
		}
	}
	if *runDeleteOldest && !*runBook {
		if err := deleteOldestBook(ctx, bookRepo); err != nil {
			log.Printf("Error: %v", err)
		}
	}

	images := service.NewImageGenerationService(cfg.Imagen, nil, nil, illustrationClient(cfg))
	queue := service.NewQueueService(imgRepo, images, cfg.OutputDir)

	if *enqueueFile != "" {
		enqueueBatch(ctx, queue, *enqueueFile)
	}

	if *runBook {
		books := service.NewBookGenerationService(plotapi.NewClient(cfg.PlotAPIURL, cfg.HTTPTimeout), images, bookRepo, service.BookOptions{
			CharacterPrefix: cfg.CharacterPrefix,
			PageDelay:       cfg.PageDelay,
			OutputDir:       cfg.OutputDir,
		})
		book, err := books.CreateBook(ctx, *pages, *theme)
		if err := keepBook(ctx, bookRepo, book, err, *runDeleteOldest); err != nil {
			log.Printf("Error creating book: %v", err)
		}
		if book != nil {
			log.Printf("Book %s: %q, %d pages", book.ID, book.Title, book.PageCount())
		}
	}

	switch {
	case *runCron:
		log.Println("Starting scheduled queue processing...")
		startCronWorkflow(ctx, queue, cfg.CronSchedule)
	case *runProcessor:
		log.Println("Starting queue processing workflow...")
		processQueueWorkflow(ctx, queue, cfg.CheckInterval)
	}
	log.Println("Shutting down gracefully...")
}

func runImagenWorkflow(ctx context.Context, cfg *config.Config, prompt, path string) {
	if err := cfg.ValidateVertex(); err != nil {
		log.Printf("Imagen is not configured: %v", err)
		return
	}
	if err := cfg.ApplyCredentials(); err != nil {
		log.Printf("Imagen is not configured: %v", err)
		return
	}
	client, err := vertexai.NewVertexClient(ctx, cfg.GoogleProject, cfg.GoogleLocation)
	if err != nil {
		log.Printf("Error: %v", err)
		return
	}
	svc := service.NewImageGenerationService(cfg.Imagen, vertexai.NewImagenGenerator(client), nil, nil)
	if _, err := svc.GenerateWithImagen(ctx, prompt, path); err != nil {
		log.Printf("Error: %v", err)
	}
}

func runGeminiWorkflow(ctx context.Context, cfg *config.Config, prompt, path string) {
	if err := cfg.ValidateGemini(); err != nil {
		log.Printf("Gemini is not configured: %v", err)
		return
	}
	client, err := vertexai.NewGeminiClient(ctx, cfg.GoogleAPIKey)
	if err != nil {
		log.Printf("Error: %v", err)
		return
	}
	svc := service.NewImageGenerationService(cfg.Imagen, nil, vertexai.NewGeminiGenerator(client, cfg.GeminiImageModel), nil)
	if _, err := svc.GenerateWithGemini(ctx, prompt, path); err != nil {
		log.Printf("Error: %v", err)
	}
}

func enqueueBatch(ctx context.Context, queue *service.QueueService, path string) {
	batch, err := prompts.LoadBatch(path)
	if err != nil {
		log.Printf("Error loading %s: %v", path, err)
		return
	}
	ids, err := queue.Enqueue(ctx, batch.Prompts)
	if err != nil {
		log.Printf("Error enqueuing prompts: %v", err)
	}
	log.Printf("Enqueued %d prompts from %s", len(ids), path)
}

func openDB(cfg *config.Config) (*sql.DB, error) {
	log.Println("Initializing database connection...")
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, err
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)
	log.Println("Database connection established")
	return db, nil
}

func startCronWorkflow(ctx context.Context, queue *service.QueueService, schedule string) {
	c := cron.New(cron.WithSeconds())

	var cronMutex sync.Mutex

	_, err := c.AddFunc(schedule, func() {
		log.Println("[CRON] Attempting to start scheduled queue processing...")
		if !cronMutex.TryLock() {
			log.Println("[CRON] Previous run still in progress, skipping")
			return
		}
		defer cronMutex.Unlock()
		n, err := queue.ProcessReady(ctx)
		if err != nil {
			log.Printf("[CRON] Error processing queue: %v", err)
		}
		log.Printf("[CRON] Finished scheduled queue processing, %d images generated.", n)
	})
	if err != nil {
		log.Printf("Error scheduling queue processing: %v", err)
		return
	}

	c.Start()
	log.Println("Cron scheduler started successfully")

	<-ctx.Done()
	<-c.Stop().Done()
	log.Println("Cron scheduler stopped")
}

func processQueueWorkflow(ctx context.Context, queue *service.QueueService, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Queue processing workflow stopped")
			return
		case <-ticker.C:
			if _, err := queue.ProcessReady(ctx); err != nil {
				log.Printf("Error processing queue: %v", err)
			}
		}
	}
}

// requestClient serves the single-pass -request flow, which makes one attempt
func requestClient(cfg *config.Config) *pictureapi.Client {
	return pictureapi.NewClient(cfg.PictureAPIURL, cfg.HTTPTimeout, pictureapi.RetryPolicy{})
}

// illustrationClient serves book pages and the queue, which retry failed requests
func illustrationClient(cfg *config.Config) *pictureapi.Client {
	return pictureapi.NewClient(cfg.PictureAPIURL, cfg.HTTPTimeout, pictureapi.RetryPolicy{
		Delay:                 cfg.RetryDelay,
		MaxServerErrorRetries: cfg.MaxServerErrorRetries,
		MaxRetries:            cfg.MaxRetries,
	})
}

// checkOutFlag rejects -out when it would be shared by several single-pass flows
func checkOutFlag(out string, flows ...bool) error {
	if out == "" {
		return nil
	}
	selected := 0
	for _, f := range flows {
		if f {
			selected++
		}
	}
	if selected > 1 {
		return errors.New("-out names a single file; use it with only one of -imagen, -gemini or -request")
	}
	return nil
}

func outputPath(cfg *config.Config, flagValue, name string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Join(cfg.OutputDir, name)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

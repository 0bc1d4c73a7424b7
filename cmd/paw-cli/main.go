// Command paw-cli is a terminal playground client: it discovers endpoint
// schema documents, prompts for the synthesized form fields, submits the
// job, and streams queue updates until the result arrives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joeshaw/envdecode"

	falaipaw "github.com/crim50n/falai-paw"
	"github.com/crim50n/falai-paw/pkg/endpoint"
	"github.com/crim50n/falai-paw/pkg/formstate"
	"github.com/crim50n/falai-paw/pkg/job"
	"github.com/crim50n/falai-paw/pkg/tui"
)

// Config is read from the environment. Defaults keep the client usable
// with nothing but FAL_KEY set.
type Config struct {
	APIKey       string        `env:"FAL_KEY"`
	BaseURL      string        `env:"PAW_BASE_URL,default="`
	EndpointsDir string        `env:"PAW_ENDPOINTS_DIR,default=endpoints"`
	DBPath       string        `env:"PAW_DB,default=paw.db"`
	PollInterval time.Duration `env:"PAW_POLL_INTERVAL,default=2s"`
}

func main() {
	endpointID := flag.String("endpoint", "", "endpoint id to run (interactive pick when empty)")
	listOnly := flag.Bool("list", false, "list discovered endpoints and exit")
	flag.Parse()

	var cfg Config
	_ = envdecode.Decode(&cfg)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	updates := make(chan job.Update, 64)
	client, err := falaipaw.New(
		falaipaw.WithAPIKey(cfg.APIKey),
		falaipaw.WithBaseURL(cfg.BaseURL),
		falaipaw.WithStorePath(cfg.DBPath),
		falaipaw.WithPollInterval(cfg.PollInterval),
		falaipaw.WithLogger(logger),
		falaipaw.WithUpdates(func(u job.Update) { updates <- u }),
	)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer client.Close()

	if info, err := os.Stat(cfg.EndpointsDir); err == nil && info.IsDir() {
		if _, err := client.Registry().Discover(ctx, os.DirFS(cfg.EndpointsDir), "."); err != nil {
			logger.Warn("some schema documents failed to load", "error", err)
		}
	}

	endpoints := client.Registry().List()
	if len(endpoints) == 0 {
		log.Fatalf("No endpoints found under %s", cfg.EndpointsDir)
	}

	if *listOnly {
		for _, ep := range endpoints {
			fmt.Printf("%-40s %s\n", ep.ID, ep.DisplayName())
		}
		return
	}

	driver := tui.NewSurveyDriver()

	id := *endpointID
	if id == "" {
		id, err = pickEndpoint(ctx, driver, endpoints)
		if err != nil {
			exitOnPromptErr(err)
		}
	}

	// A job checkpointed by a previous run takes over the session.
	if err := client.Resume(ctx); err != nil {
		logger.Warn("resume failed", "error", err)
	}
	if client.Jobs().State() != job.StateIdle {
		fmt.Println("Resuming in-flight job from a previous run...")
		streamUpdates(ctx, client, updates)
		return
	}

	descriptors, report, err := client.Form(ctx, id)
	if err != nil {
		log.Fatalf("Failed to build form for %s: %v", id, err)
	}
	for _, note := range report.Notes {
		fmt.Printf("note: %s: %s\n", note.Field, note.Reason)
	}

	prior, _, err := client.Settings().LoadEndpoint(ctx, id)
	if err != nil {
		logger.Warn("saved settings unavailable", "endpoint", id, "error", err)
	}

	values, kinds, err := tui.NewPrompter(driver).Run(ctx, descriptors, prior)
	if err != nil {
		exitOnPromptErr(err)
	}

	tree, err := formstate.Collect(values, kinds)
	if err != nil {
		log.Fatalf("Failed to collect values: %v", err)
	}

	if err := client.Submit(ctx, id, tree); err != nil {
		var missing *formstate.MissingFieldsError
		if errors.As(err, &missing) {
			log.Fatalf("Missing required fields: %v", missing.Fields)
		}
		log.Fatalf("Submit failed: %v", err)
	}

	streamUpdates(ctx, client, updates)
}

func pickEndpoint(ctx context.Context, driver tui.PromptDriver, endpoints []*endpoint.Endpoint) (string, error) {
	options := make([]string, len(endpoints))
	for i, ep := range endpoints {
		options[i] = fmt.Sprintf("%s (%s)", ep.DisplayName(), ep.ID)
	}
	choice, err := driver.Select(ctx, tui.SelectConfig{
		Message:  "Endpoint",
		Options:  options,
		PageSize: 15,
	})
	if err != nil {
		return "", err
	}
	if choice < 0 || choice >= len(endpoints) {
		return "", errors.New("no endpoint selected")
	}
	return endpoints[choice].ID, nil
}

// streamUpdates prints queue progress until a terminal update arrives. An
// interrupt cancels the remote job before exiting.
func streamUpdates(ctx context.Context, client *falaipaw.Client, updates <-chan job.Update) {
	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nCancelling...")
			if err := client.Cancel(context.Background()); err != nil {
				log.Printf("Cancel failed: %v", err)
			}
			return

		case u := <-updates:
			switch u.State {
			case job.StateSubmitting:
				fmt.Println("Submitting...")
			case job.StateQueued:
				if u.QueuePosition != nil {
					fmt.Printf("Queued (position %d)\n", *u.QueuePosition)
				} else if u.Status != "" {
					fmt.Printf("Queued (%s)\n", u.Status)
				} else {
					fmt.Println("Queued")
				}
			case job.StateRunning:
				if u.Percentage != nil {
					fmt.Printf("Running %.0f%%\n", *u.Percentage)
				} else if u.Status != "" {
					fmt.Printf("Running (%s)\n", u.Status)
				} else {
					fmt.Println("Running")
				}
			case job.StateCompleted:
				printResult(u.Result)
				return
			case job.StateFailed:
				if u.Err != nil {
					log.Fatalf("Job failed: %v", u.Err)
				}
				log.Fatal("Job failed")
			case job.StateCancelled:
				fmt.Println("Cancelled")
				return
			}
		}
	}
}

func printResult(result *job.Result) {
	if result == nil {
		fmt.Println("Done (no output)")
		return
	}
	for _, media := range result.Media {
		if media.Width > 0 && media.Height > 0 {
			fmt.Printf("%s (%dx%d)\n", media.URL, media.Width, media.Height)
		} else {
			fmt.Println(media.URL)
		}
	}
	if result.Text != "" {
		fmt.Println(result.Text)
	}
	if len(result.Media) == 0 && result.Text == "" {
		fmt.Println("Done")
	}
}

func exitOnPromptErr(err error) {
	if errors.Is(err, tui.ErrAborted) {
		fmt.Println("Aborted")
		os.Exit(130)
	}
	log.Fatalf("Prompt failed: %v", err)
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mcdickies/savor/internal/app"
	"github.com/mcdickies/savor/internal/config"
	"github.com/mcdickies/savor/internal/llm"
	"github.com/mcdickies/savor/internal/observability"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	os.Exit(execute(os.Args[1], os.Args[2:]))
}

// execute runs one command and returns the process exit code. Deferred cleanup
// runs before main exits.
func execute(cmd string, args []string) int {
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}

	logger, err := observability.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Printf("Failed to initialize logger: %v", err)
		return 1
	}
	defer logger.Sync()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize application", zap.Error(err))
		return 1
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, application, cfg, logger, cmd, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", message(err))
		return 1
	}
	return 0
}

func run(ctx context.Context, a *app.App, cfg *config.Config, logger *zap.Logger, cmd string, args []string) error {
	switch cmd {
	case "post":
		return runPost(a, args)
	case "clip":
		if len(args) != 2 {
			return errors.New("usage: savor clip <post-id> <url>")
		}
		return a.Clip(ctx, args[0], args[1])
	case "transcribe":
		transcribeCmd := flag.NewFlagSet("transcribe", flag.ExitOnError)
		mimeType := transcribeCmd.String("mime", "audio/ogg", "MIME type of the audio file")
		transcribeCmd.Parse(args)
		if transcribeCmd.NArg() != 2 {
			return errors.New("usage: savor transcribe [-mime type] <post-id> <audio-file>")
		}
		return a.Transcribe(ctx, transcribeCmd.Arg(0), transcribeCmd.Arg(1), *mimeType)
	case "draft":
		if len(args) != 1 {
			return errors.New("usage: savor draft <post-id>")
		}
		ctx, cancel := context.WithTimeout(ctx, llm.RequestTimeout+5*time.Second)
		defer cancel()
		return a.Draft(ctx, args[0])
	case "key":
		return runKey(ctx, a, args)
	case "metrics":
		metricsCmd := flag.NewFlagSet("metrics", flag.ExitOnError)
		days := metricsCmd.Int("days", 7, "Show usage for the last N days")
		metricsCmd.Parse(args)
		return a.PrintMetrics(*days)
	case "metrics-cleanup":
		cleanupCmd := flag.NewFlagSet("metrics-cleanup", flag.ExitOnError)
		days := cleanupCmd.Int("days", 30, "Keep records for the last N days")
		cleanupCmd.Parse(args)
		return a.CleanupMetrics(*days)
	case "serve":
		return serve(ctx, a.Router(nil), cfg.Port, logger)
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func runPost(a *app.App, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: savor post <new|list|show|photo|ref|idea|set> ...")
	}
	sub, rest := args[0], args[1:]
	switch {
	case sub == "new":
		_, err := a.NewPost(strings.Join(rest, " "))
		return err
	case sub == "list":
		return a.ListPosts()
	case sub == "show" && len(rest) == 1:
		return a.ShowPost(rest[0])
	case sub == "photo" && len(rest) == 2:
		return a.AddPhoto(rest[0], rest[1], false)
	case sub == "ref" && len(rest) == 2:
		return a.AddPhoto(rest[0], rest[1], true)
	case sub == "idea" && len(rest) >= 2:
		return a.AddIdea(rest[0], strings.Join(rest[1:], " "))
	case sub == "set" && len(rest) >= 3:
		return a.SetField(rest[0], rest[1], strings.Join(rest[2:], " "))
	default:
		return fmt.Errorf("invalid post command: %s", strings.Join(args, " "))
	}
}

func runKey(ctx context.Context, a *app.App, args []string) error {
	switch {
	case len(args) == 2 && args[0] == "set":
		return a.SetAPIKey(ctx, args[1])
	case len(args) == 1 && args[0] == "show":
		return a.ShowAPIKey(ctx)
	case len(args) == 1 && args[0] == "delete":
		return a.DeleteAPIKey(ctx)
	default:
		return errors.New("usage: savor key <set <value>|show|delete>")
	}
}

// message prefers the user-facing wording for draft failures.
func message(err error) string {
	if llm.IsDraftError(err) {
		return llm.UserMessage(err)
	}
	return err.Error()
}

func serve(ctx context.Context, handler http.Handler, port int, logger *zap.Logger) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctxShutdown)
}

func printUsage() {
	fmt.Println("Usage: savor <command> [arguments]")
	fmt.Println("\nCommands:")
	fmt.Println("  post new [title]              Create an empty post")
	fmt.Println("  post list                     List stored posts")
	fmt.Println("  post show <id>                Print a post")
	fmt.Println("  post photo <id> <file>        Attach a published photo")
	fmt.Println("  post ref <id> <file>          Attach a reference photo")
	fmt.Println("  post idea <id> <text>         Add a brainstorming idea")
	fmt.Println("  post set <id> <field> <text>  Set title, description, guidance or transcript")
	fmt.Println("  clip <id> <url>               Use a web page as source material")
	fmt.Println("  transcribe <id> <audio>       Append a voice memo transcript")
	fmt.Println("  draft <id>                    Draft the post with Gemini and save the result")
	fmt.Println("  key set|show|delete           Manage the stored Gemini API key")
	fmt.Println("  metrics                       Show draft usage")
	fmt.Println("  metrics-cleanup               Remove old metric records")
	fmt.Println("  serve                         Run the HTTP API")
}

// Command ask sends one question through the provider router and streams
// the answer to stdout.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/studymate/studymate-backend/internal/config"
	"github.com/studymate/studymate-backend/internal/llm"
)

func main() {
	var (
		mode        = flag.String("mode", llm.DefaultMode, "Mode: "+strings.Join(llm.ModeIDs(), ", "))
		personality = flag.String("personality", "", "Personality prompt")
		endpoint    = flag.String("endpoint", "", "Completion proxy base URL (default: the configured server)")
		verbose     = flag.Bool("v", false, "Log provider attempts to stderr")
	)
	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logrus.WarnLevel)
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	message, err := readMessage(flag.Args(), os.Stdin)
	if err != nil {
		log.WithError(err).Fatal("No question")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	routerCfg := cfg.RouterConfig()
	if *endpoint != "" {
		routerCfg.EndpointBaseURL = *endpoint
	}

	router, err := llm.NewProviderRouter(routerCfg, llm.WithLogger(log))
	if err != nil {
		log.WithError(err).Fatal("Failed to create provider router")
	}

	// Ctrl-C cancels the stream
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	result, err := router.Route(ctx, llm.RouteRequest{
		Message:     message,
		Mode:        *mode,
		Personality: *personality,
		OnChunk: func(fragment string) {
			out.WriteString(fragment)
			out.Flush()
		},
		OnRetry: func(failedModel string, err error) {
			out.Flush()
			fmt.Fprintf(os.Stderr, "\n[%s failed, retrying: %v]\n", failedModel, err)
		},
	})
	switch {
	case errors.Is(err, context.Canceled):
		out.Flush()
		fmt.Fprintln(os.Stderr, "\ncancelled")
		os.Exit(130)
	case err != nil:
		out.Flush()
		fmt.Fprintln(os.Stderr, llm.PublicMessage(err))
		os.Exit(1)
	case result.Notice != nil:
		fmt.Fprintln(os.Stderr, result.Notice.Message)
		os.Exit(2)
	}

	out.WriteString("\n")
	out.Flush()
	fmt.Fprintf(os.Stderr, "model: %s  tokens: %d  latency: %dms\n", result.Model, result.TokenCount, result.LatencyMs)
}

// readMessage joins the arguments, or reads stdin when there are none
func readMessage(args []string, stdin io.Reader) (string, error) {
	message := strings.Join(args, " ")
	if message == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", err
		}
		message = string(data)
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return "", errors.New("pass a question as arguments or on stdin")
	}
	return message, nil
}

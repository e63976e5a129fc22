// posture-stub serves the inference service contract (/ping, /predict)
// without a model, for running the agent locally.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-posture/internal/log"
	"github.com/teslashibe/go-posture/pkg/predict"
	"github.com/teslashibe/go-posture/pkg/stub"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "5000"
	}

	addr := flag.String("addr", ":"+port, "Listen address")
	mode := flag.String("mode", "brightness", "Classifier: brightness, sequence, good, bad")
	pattern := flag.String("pattern", "bbbbbbbbbbbbbbbggggg", "Sequence of b/g classes for -mode sequence")
	threshold := flag.Float64("threshold", 60, "Mean brightness below which a frame is bad, for -mode brightness")
	level := flag.String("log-level", "info", "Log level")
	format := flag.String("log-format", "text", "Log format: text or json")
	flag.Parse()

	log.Init(log.Options{Level: *level, Format: *format})
	logger := log.L()

	classifier, err := newClassifier(*mode, *pattern, *threshold)
	if err != nil {
		logger.Error("invalid classifier", "error", err)
		os.Exit(2)
	}

	srv := stub.NewServer(classifier, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()

	logger.Info("classifier", "mode", *mode)
	if err := srv.Listen(*addr); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newClassifier(mode, pattern string, threshold float64) (stub.Classifier, error) {
	switch mode {
	case "brightness":
		return stub.Brightness{Threshold: threshold}, nil
	case "sequence":
		return stub.ParseSequence(pattern)
	case "good":
		return stub.Fixed(predict.ClassGood), nil
	case "bad":
		return stub.Fixed(predict.ClassBad), nil
	default:
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
}

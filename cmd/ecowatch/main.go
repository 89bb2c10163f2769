package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ecosim/internal/notify"
)

func main() {
	url := flag.String("url", "ws://localhost:8090/events", "event hub websocket URL")
	kind := flag.String("kind", "", "only print records of this kind (trade, economic, tick)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	records := make(chan notify.Record, 64)
	go func() {
		if err := notify.NewSubscriber(logger, *url).Stream(ctx, records); err != nil {
			logger.Error("Subscriber stopped", "error", err)
		}
		close(records)
	}()

	for rec := range records {
		if *kind != "" && rec.Kind != *kind {
			continue
		}
		fmt.Printf("%d\t%s\t%s\t%s\n", rec.Tick, rec.Kind, rec.RegionID, rec.Payload)
	}
}

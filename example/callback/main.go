package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/HapticFlow/pkg/hapticflow"
)

func main() {
	flow, err := hapticflow.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(batch []hapticflow.EventRecord) error {
		for _, rec := range batch {
			fmt.Printf("%s source=%s key=%s cmd=%s cell=%d speed=%d\n",
				rec.At.Format(time.RFC3339Nano),
				rec.Source,
				rec.Key,
				rec.Command,
				rec.Cell,
				rec.Speed,
			)
		}
		return nil
	}

	if err := flow.Run(ctx, hapticflow.StreamOutCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/HapticFlow"
)

// Feeds the "sdk" integration from Go and fans stored records out over a channel.
func main() {
	flow, err := hapticflow.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, batches, closeBatches := hapticflow.NewChannelSink("fanout", 32)
	defer closeBatches()
	go fanoutWorker("history", batches)

	var sdk *hapticflow.ExternalSource
	rt, err := flow.
		StreamIN(hapticflow.StreamInExternal("sdk", &sdk)).
		StreamOUT(hapticflow.StreamOutSink(sink))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}
	go simulateGunfire(ctx, sdk)

	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

func simulateGunfire(ctx context.Context, src *hapticflow.ExternalSource) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	hands := []string{"left", "right"}
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ev := hapticflow.GameEvent{Name: "gun_fire", Hand: hands[i%2]}
			if err := src.PublishEvent(ev); err != nil {
				log.Printf("publish: %v", err)
			}
		}
	}
}

func fanoutWorker(name string, batches <-chan []hapticflow.EventRecord) {
	for batch := range batches {
		fmt.Printf("[%s] stored %d records at %s\n", name, len(batch), time.Now().Format(time.RFC3339))
	}
}

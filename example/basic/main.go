package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/HapticFlow"
)

// Runs every enabled source from the sample config and prints the daemon
// connection state every few seconds until interrupted.
func main() {
	flow, err := hapticflow.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	rt, err := flow.StreamOUT()
	if err != nil {
		log.Fatalf("build bridge: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Start(); err != nil {
		log.Fatalf("start bridge: %v", err)
	}
	log.Printf("session %s sources=%v status=%s", rt.Session(), rt.Integrations(), rt.StatusAddr())

	tick := time.NewTicker(5 * time.Second)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := rt.Shutdown(shutdownCtx); err != nil {
				log.Fatalf("bridge shutdown: %v", err)
			}
			return
		case <-tick.C:
			st := rt.Status()
			log.Printf("daemon=%s recent=%d", rt.Connection(), len(st.Recent))
		}
	}
}

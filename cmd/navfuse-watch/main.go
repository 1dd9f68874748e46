// navfuse-watch is a terminal viewer for the navfuse feed. It connects to
// the websocket endpoint, keeps reconnecting, and redraws the latest state.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"navfuse/internal/client"
)

func main() {
	var url string
	var interval time.Duration
	flag.StringVar(&url, "url", "ws://127.0.0.1:8080/ws", "Feed websocket URL")
	flag.DurationVar(&interval, "interval", 500*time.Millisecond, "Redraw interval")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Logs would fight the redraw for the terminal.
	log.SetOutput(os.Stderr)

	sess := client.New(client.Config{URL: url}, func(lat, lon float64) {
		log.Printf("position acquired: %.6f, %.6f", lat, lon)
	})
	go sess.Run(ctx)

	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println()
			return
		case <-tick.C:
			st := sess.Snapshot()
			// Home the cursor and clear; cheap full redraw.
			fmt.Print("\033[H\033[2J")
			fmt.Printf("navfuse %s\n\n", url)
			fmt.Print(client.Render(st))
		}
	}
}

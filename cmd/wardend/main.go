package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	wardencmd "github.com/emberwake/warden/internal/cmd/wardend"
	"github.com/emberwake/warden/internal/platform/otel"
)

func main() {
	cfg, args, err := wardencmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[WARDEN] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := otel.Setup(ctx, "wardend")
	if err != nil {
		log.Fatalf("otel setup: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Printf("otel shutdown: %v", err)
		}
	}()

	if err := wardencmd.Run(ctx, os.Stdout, cfg, args); err != nil {
		log.Fatalf("wardend: %v", err)
	}
}

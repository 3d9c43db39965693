package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/surrealdb/surrealdb.go/contrib/surrealkeep/pkg/surrealkeep"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := surrealkeep.Main(ctx, os.Args[1:]); err != nil {
		log.Fatal().Err(err).Msg("surrealkeep failed")
	}
}

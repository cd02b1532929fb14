package main

import (
	"context"
	"log"
	"time"

	"github.com/viralforge/mesh/services/data-ai/M59-inference-event-relay/internal/app/bootstrap"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := bootstrap.RunSmoke(ctx, bootstrap.ConfigPath()); err != nil {
		log.Fatalf("startup smoke: %v", err)
	}
}

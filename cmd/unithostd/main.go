package main

import (
	"context"
	"log"
	"os"

	"github.com/NVIDIA/unithost/pkg/api"
	"github.com/NVIDIA/unithost/pkg/config"
)

func main() {
	cfg, err := config.Load(os.Getenv("UNITHOST_CONFIG"))
	if err != nil {
		log.Fatal(err)
	}
	if err := api.Serve(context.Background(), cfg); err != nil {
		log.Fatal(err)
	}
}

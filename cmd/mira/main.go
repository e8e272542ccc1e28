// Command mira answers foreign credential evaluation questions from an
// indexed knowledge base.
package main

import (
	"context"
	"os"

	"github.com/custodia-labs/mira/internal/adapters/driving/cli"
	"github.com/custodia-labs/mira/internal/app"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cli.SetVersion(version)
	cli.SetBootstrap(bootstrap)

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

func bootstrap(ctx context.Context) (*cli.Services, error) {
	a, err := app.New(ctx, app.Options{})
	if err != nil {
		return nil, err
	}

	services := &cli.Services{
		Settings:    a.Settings,
		Unavailable: a.Unavailable,
		Close:       a.Close,
	}
	// Nil pointers must stay nil interfaces.
	if a.Ingest != nil {
		services.Ingest = a.Ingest
	}
	if a.Retriever != nil {
		services.Retrieval = a.Retriever
	}
	if a.Query != nil {
		services.Query = a.Query
	}
	return services, nil
}

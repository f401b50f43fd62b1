// cmd/importer/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/app"
	"github.com/unclebandit/outreach-engine/internal/config"
	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/logger"
	"github.com/unclebandit/outreach-engine/internal/service"
)

type summary struct {
	Imported, Duplicates, Rejected int
}

func main() {
	file := flag.String("file", "", "CSV file with a natural_key column")
	sequenceType := flag.String("sequence", "", "sequence to start for every imported lead")
	flag.Parse()
	if *file == "" {
		log.Fatal("-file is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zl, err := logger.New(cfg.Service.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer zl.Sync()

	f, err := os.Open(*file)
	if err != nil {
		zl.Fatal("failed to open csv", zap.Error(err))
	}
	defer f.Close()

	leads, err := readLeads(f, *sequenceType)
	if err != nil {
		zl.Fatal("failed to parse csv", zap.Error(err))
	}

	ctx := context.Background()
	a, err := app.Build(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to wire engine", zap.Error(err))
	}
	defer a.Close()

	sum, err := importLeads(ctx, a.Service, leads, zl)
	if err != nil {
		zl.Error("import aborted", zap.Error(err))
	}
	fmt.Printf("imported=%d duplicates=%d rejected=%d\n", sum.Imported, sum.Duplicates, sum.Rejected)
}

// importLeads imports rows one by one. Duplicate keys and invalid rows are
// counted and skipped; any other error stops the import.
func importLeads(ctx context.Context, svc *service.CampaignService, leads []service.ImportRequest, log *zap.Logger) (summary, error) {
	var sum summary
	for i, req := range leads {
		_, err := svc.ImportEntity(ctx, req)
		switch {
		case err == nil:
			sum.Imported++
		case errors.Is(err, appErrors.ErrConflict):
			sum.Duplicates++
		case errors.Is(err, appErrors.ErrValidation), errors.Is(err, appErrors.ErrNotFound):
			sum.Rejected++
			log.Warn("row rejected", zap.Int("row", i+2), zap.Error(err))
		default:
			return sum, fmt.Errorf("row %d: %w", i+2, err)
		}
	}
	return sum, nil
}

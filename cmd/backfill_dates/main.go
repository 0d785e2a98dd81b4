package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/aetherhq/aether-backend/internal/app"
	"github.com/aetherhq/aether-backend/internal/services"
)

type idList []string

func (l *idList) String() string { return strings.Join(*l, ",") }
func (l *idList) Set(v string) error {
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			*l = append(*l, part)
		}
	}
	return nil
}

func main() {
	var ids idList
	var dryRun bool
	var limit int
	flag.Var(&ids, "upload", "upload_id to backfill (repeatable or comma-separated)")
	flag.BoolVar(&dryRun, "dry-run", false, "report resolvable rows without writing")
	flag.IntVar(&limit, "limit", 0, "limit number of uploads processed")
	flag.Parse()

	_ = godotenv.Load()
	// One-shot run: no API, no queue consumers.
	_ = os.Setenv("RUN_SERVER", "false")
	_ = os.Setenv("RUN_WORKER", "false")

	ctx := context.Background()
	application, err := app.New(ctx)
	if err != nil {
		fmt.Printf("init app: %v\n", err)
		os.Exit(1)
	}
	defer application.Close()

	opts := services.BackfillOptions{DryRun: dryRun, Limit: limit}
	for _, s := range ids {
		id, err := uuid.Parse(s)
		if err != nil || id == uuid.Nil {
			fmt.Printf("skipping invalid upload_id %q\n", s)
			continue
		}
		opts.UploadIDs = append(opts.UploadIDs, id)
	}
	if len(ids) > 0 && len(opts.UploadIDs) == 0 {
		fmt.Println("no valid upload_id values provided")
		return
	}

	report, err := application.Services.Backfill.Run(ctx, opts)
	if err != nil {
		fmt.Printf("backfill failed: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(report)
}

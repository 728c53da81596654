// Command reindex manages the vector collection: drop it entirely (for an
// embedding model change, which EnsureCollection otherwise rejects with a
// dimension mismatch) or remove the chunks of a single source document.
// Re-filling the index is cmd/ingest's job.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/CoursePilotAI/coursepilot-mvp/engine/semantic"
)

func main() {
	var (
		qdrantAddr = flag.String("qdrant", "localhost:6334", "Qdrant gRPC address")
		collection = flag.String("collection", "course_material", "Qdrant collection name")
		drop       = flag.Bool("drop", false, "delete the whole collection")
		source     = flag.String("source", "", "delete chunks of this source filename only")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if *drop == (*source != "") {
		fmt.Fprintln(os.Stderr, "usage: reindex -drop | -source <filename>")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := semantic.New(*qdrantAddr, *collection)
	if err != nil {
		log.Error("qdrant connect failed", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	exists, err := store.Exists(ctx)
	if err != nil {
		log.Error("collection lookup failed", "error", err)
		os.Exit(1)
	}
	if !exists {
		log.Info("collection does not exist, nothing to do", "collection", *collection)
		return
	}

	before, err := store.Count(ctx)
	if err != nil {
		log.Error("count failed", "error", err)
		os.Exit(1)
	}

	switch {
	case *drop:
		if err := store.DeleteCollection(ctx); err != nil {
			log.Error("drop failed", "error", err)
			os.Exit(1)
		}
		log.Info("collection dropped", "collection", *collection, "points", before)
	case *source != "":
		if err := store.DeleteBySource(ctx, *source); err != nil {
			log.Error("delete by source failed", "source", *source, "error", err)
			os.Exit(1)
		}
		after, err := store.Count(ctx)
		if err != nil {
			log.Error("count failed", "error", err)
			os.Exit(1)
		}
		log.Info("source removed", "source", *source, "points_removed", before-after, "points_left", after)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"lexcounsel-backend/config"
	"lexcounsel-backend/legalapi"
	"lexcounsel-backend/service"

	"github.com/spf13/cobra"
)

func ingestCMD() *cobra.Command {
	var publisher, title, query string
	var year, pos, limit, chunkLimit int

	var ingest = &cobra.Command{
		Use:   "ingest",
		Short: "Index statutes into the GLOBAL semantic library",
		Long: "Fetches statute text, chunks and embeds it, and stores it as GLOBAL chunks.\n" +
			"Pass --publisher/--year/--pos for one act, or --query to index the top search hits.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if query == "" && (publisher == "" || year <= 0 || pos <= 0) {
				return errors.New("either --query or all of --publisher, --year and --pos are required")
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			reqs := []service.IngestStatuteRequest{{
				Publisher:  publisher,
				Year:       year,
				Pos:        pos,
				Title:      title,
				ChunkLimit: chunkLimit,
			}}
			if query != "" {
				reqs, err = searchIngestRequests(ctx, a.statutes, query, limit, chunkLimit)
				if err != nil {
					return err
				}
			}

			var failed int
			for _, req := range reqs {
				res, err := a.ingestion.IngestStatute(ctx, req)
				if err != nil {
					failed++
					log.Printf("Error: failed to ingest %s %d/%d: %v", req.Publisher, req.Year, req.Pos, err)
					continue
				}
				log.Printf("Indexed %s (%s): %d chunks, %d new", res.Key, res.Title, len(res.Chunks), res.Inserted)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d statutes failed to ingest", failed, len(reqs))
			}
			return nil
		},
	}
	ingest.Flags().StringVar(&publisher, "publisher", "", "statute publisher (DU or MP)")
	ingest.Flags().IntVar(&year, "year", 0, "statute year")
	ingest.Flags().IntVar(&pos, "pos", 0, "statute position")
	ingest.Flags().StringVar(&title, "title", "", "statute title")
	ingest.Flags().StringVar(&query, "query", "", "keyword search; indexes the top hits")
	ingest.Flags().IntVar(&limit, "limit", 3, "number of search hits to index with --query")
	ingest.Flags().IntVar(&chunkLimit, "chunk-limit", 0, "max chunks per statute (0 = all)")

	return ingest
}

func searchIngestRequests(ctx context.Context, statutes *legalapi.StatuteClient, query string, limit, chunkLimit int) ([]service.IngestStatuteRequest, error) {
	candidates, err := statutes.Search(ctx, legalapi.StatuteQuery{Keyword: query})
	if err != nil {
		return nil, fmt.Errorf("statute search failed: %w", err)
	}
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	reqs := make([]service.IngestStatuteRequest, 0, len(candidates))
	for _, c := range candidates {
		reqs = append(reqs, service.IngestStatuteRequest{
			Publisher:  c.Publisher,
			Year:       c.Year,
			Pos:        c.Pos,
			Title:      c.Title,
			ChunkLimit: chunkLimit,
		})
	}
	return reqs, nil
}

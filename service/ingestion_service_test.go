package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"lexcounsel-backend/chunking"
	"lexcounsel-backend/legalapi"
	"lexcounsel-backend/models"

	"github.com/google/uuid"
)

func longStatute(articles int) string {
	var b strings.Builder
	for i := 1; i <= articles; i++ {
		fmt.Fprintf(&b, "Art. %d. Przepis numer %d o odpowiedzialności.\n\n", i, i)
	}
	return b.String()
}

type ingestionFixture struct {
	svc      *IngestionService
	chunks   *fakeChunkStore
	statutes *fakeStatuteSource
	embedder *fakeEmbedder
}

func newIngestionFixture() *ingestionFixture {
	f := &ingestionFixture{
		chunks: &fakeChunkStore{},
		statutes: &fakeStatuteSource{
			candidates: []legalapi.StatuteCandidate{
				{Publisher: "DU", Year: 1964, Pos: 16, Title: "Kodeks cywilny"},
				{Publisher: "DU", Year: 1964, Pos: 43, Title: "Kodeks postępowania cywilnego"},
			},
			texts: map[models.IdentityKey]string{
				models.StatuteKey("DU", 1964, 16): longStatute(15),
			},
		},
		embedder: &fakeEmbedder{},
	}
	f.svc = NewIngestionService(
		IngestionWithChunkStore(f.chunks),
		IngestionWithEmbedder(f.embedder),
		IngestionWithStatuteSource(f.statutes),
		IngestionWithLimits(5, 10),
		IngestionWithChunking(chunking.Options{MaxSize: 60}),
	)
	return f
}

func TestSearchFallsBackToIngestionOnEmptyIndex(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()

	first, err := f.svc.Search(ctx, SemanticSearchRequest{Query: "kodeks cywilny"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if first.Source != SourceFallbackIngestion {
		t.Errorf("source = %s, want fallback", first.Source)
	}
	if len(first.Chunks) == 0 || len(first.Chunks) > 5 {
		t.Fatalf("chunks = %d, want 1..5", len(first.Chunks))
	}
	if first.Document == nil || first.Document.Inserted != 10 {
		t.Fatalf("document = %+v, want 10 chunks inserted", first.Document)
	}
	if f.embedder.documents != 10 {
		t.Errorf("embedded %d chunks, want the fallback limit of 10", f.embedder.documents)
	}
	for _, c := range f.chunks.chunks {
		if c.Visibility != models.VisibilityGlobal {
			t.Errorf("chunk %d visibility = %s, want GLOBAL", c.ChunkIndex, c.Visibility)
		}
	}

	second, err := f.svc.Search(ctx, SemanticSearchRequest{Query: "kodeks cywilny"})
	if err != nil {
		t.Fatalf("second Search: %v", err)
	}
	if second.Source != SourceIndex || len(second.Chunks) == 0 {
		t.Errorf("second = source %s, %d chunks", second.Source, len(second.Chunks))
	}
	if f.statutes.searches != 1 {
		t.Errorf("statute searches = %d, want 1", f.statutes.searches)
	}
}

func TestSearchWithoutCandidatesReturnsEmpty(t *testing.T) {
	f := newIngestionFixture()
	f.statutes.candidates = nil

	res, err := f.svc.Search(context.Background(), SemanticSearchRequest{Query: "nieistniejąca ustawa"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Chunks) != 0 || len(f.chunks.chunks) != 0 {
		t.Errorf("got %d chunks, indexed %d", len(res.Chunks), len(f.chunks.chunks))
	}
}

func TestSearchFiltersByVisibility(t *testing.T) {
	f := newIngestionFixture()
	owner := uuid.New()
	stranger := uuid.New()
	f.chunks.chunks = []models.VectorChunk{
		{ID: uuid.New(), Content: "prywatna notatka obcego", Visibility: models.OwnerVisibility(stranger)},
		{ID: uuid.New(), Content: "moja notatka", Visibility: models.OwnerVisibility(owner)},
	}

	res, err := f.svc.Search(context.Background(), SemanticSearchRequest{Query: "notatka", OwnerID: owner})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(res.Chunks) != 1 || res.Chunks[0].Content != "moja notatka" {
		t.Fatalf("chunks = %+v", res.Chunks)
	}
	if res.Source != SourceIndex {
		t.Errorf("source = %s", res.Source)
	}
}

func TestIngestStatuteIsIdempotent(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()
	req := IngestStatuteRequest{Publisher: "DU", Year: 1964, Pos: 16, Title: "Kodeks cywilny"}

	first, err := f.svc.IngestStatute(ctx, req)
	if err != nil {
		t.Fatalf("IngestStatute: %v", err)
	}
	if first.Inserted != 15 {
		t.Errorf("inserted = %d, want all 15 chunks without a limit", first.Inserted)
	}

	second, err := f.svc.IngestStatute(ctx, req)
	if err != nil {
		t.Fatalf("IngestStatute: %v", err)
	}
	if second.DocumentID != first.DocumentID || second.Inserted != 0 {
		t.Errorf("second run: doc %s inserted %d", second.DocumentID, second.Inserted)
	}
	if len(f.chunks.chunks) != 15 {
		t.Errorf("index holds %d chunks, want 15", len(f.chunks.chunks))
	}
}

func TestConcurrentFallbacksIndexOnce(t *testing.T) {
	f := newIngestionFixture()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.IngestStatute(ctx, IngestStatuteRequest{Publisher: "DU", Year: 1964, Pos: 16, ChunkLimit: 10}); err != nil {
				t.Errorf("IngestStatute: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(f.chunks.chunks) != 10 {
		t.Errorf("index holds %d chunks, want 10", len(f.chunks.chunks))
	}
}

func TestSharedIngestionOutlivesFirstCaller(t *testing.T) {
	f := newIngestionFixture()
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.statutes.BeforeFetch = func(ctx context.Context) error {
		once.Do(func() { close(started) })
		select {
		case <-release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	req := IngestStatuteRequest{Publisher: "DU", Year: 1964, Pos: 16, ChunkLimit: 10}

	short, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := f.svc.IngestStatute(short, req)
		firstErr <- err
	}()
	<-started

	var second *IngestResult
	secondErr := make(chan error, 1)
	go func() {
		var err error
		second, err = f.svc.IngestStatute(context.Background(), req)
		secondErr <- err
	}()

	if err := <-firstErr; !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("first caller err = %v, want deadline exceeded", err)
	}
	close(release)

	if err := <-secondErr; err != nil {
		t.Fatalf("second caller err = %v", err)
	}
	if second.Inserted != 10 {
		t.Errorf("inserted = %d, want 10", second.Inserted)
	}
	if n := f.statutes.fetchCount(); n != 1 {
		t.Errorf("fetched %d times, want one shared run", n)
	}
}

func TestIngestionTimeoutBoundsSharedRun(t *testing.T) {
	f := newIngestionFixture()
	f.svc = NewIngestionService(
		IngestionWithChunkStore(f.chunks),
		IngestionWithEmbedder(f.embedder),
		IngestionWithStatuteSource(f.statutes),
		IngestionWithTimeout(20*time.Millisecond),
	)
	f.statutes.BeforeFetch = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}

	_, err := f.svc.IngestStatute(context.Background(), IngestStatuteRequest{Publisher: "DU", Year: 1964, Pos: 16})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

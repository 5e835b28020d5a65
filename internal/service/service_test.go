package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/artifact"
	"docrag/internal/assembler"
	"docrag/internal/chunker"
	"docrag/internal/domain"
	"docrag/internal/embedding"
	"docrag/internal/embedding/hashing"
	"docrag/internal/generator/extractive"
	"docrag/internal/index"
	"docrag/internal/retriever"
	"docrag/internal/vectorstore/memory"
)

// flakyEmbedder fails on texts containing "poison" while poisoned is set.
type flakyEmbedder struct {
	*hashing.Embedder
	poisoned atomic.Bool
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if f.poisoned.Load() && strings.Contains(text, "poison") {
		return nil, fmt.Errorf("model rejected input")
	}
	return f.Embedder.Embed(ctx, text)
}

type fixture struct {
	svc       *RAGService
	embedder  *flakyEmbedder
	manager   *index.Manager
	artifacts *artifact.Store
	dir       string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	emb := &flakyEmbedder{Embedder: hashing.NewEmbedder(64)}
	store, err := artifact.NewStore(t.TempDir())
	require.NoError(t, err)
	mgr := index.NewManager(memory.NewStorage())
	ch := chunker.NewCharChunker(chunker.WithSize(40), chunker.WithOverlap(0), chunker.WithAdaptive(false))
	svc := NewRAGService(
		ch,
		embedding.NewOrchestrator(emb, embedding.WithWorkers(2)),
		mgr,
		retriever.NewHybrid(mgr, emb),
		assembler.New(extractive.New(3)),
		WithArtifacts(store),
		WithPaging(2, 2),
	)
	return &fixture{svc: svc, embedder: emb, manager: mgr, artifacts: store, dir: t.TempDir()}
}

func (f *fixture) write(t *testing.T, name string, segments ...string) string {
	t.Helper()
	var sb strings.Builder
	for _, s := range segments {
		// 40-rune segments line up with the chunk windows.
		sb.WriteString(fmt.Sprintf("%-39s.", s))
	}
	p := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(p, []byte(sb.String()), 0o644))
	return p
}

func TestIngestFiles_ReportsPerDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alpha := f.write(t, "alpha.txt", "the clock is synchronised with ptp", "fronthaul latency budget", "radio unit power")
	pptx := filepath.Join(f.dir, "slides.pptx")
	require.NoError(t, os.WriteFile(pptx, []byte("x"), 0o644))

	report, err := f.svc.IngestFiles(ctx, []string{alpha, pptx})
	require.NoError(t, err)
	require.Len(t, report.Documents, 2)

	errs := report.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0].Err, domain.ErrUnsupportedFormat)

	chunks, embedded, failed := report.Totals()
	assert.Equal(t, 3, chunks)
	assert.Equal(t, 3, embedded)
	assert.Equal(t, 0, failed)

	n, err := f.svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	titles, err := f.svc.Titles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha"}, titles)

	doc, err := f.artifacts.LoadText("alpha")
	require.NoError(t, err)
	assert.Equal(t, "TXT", doc.Metadata.Format)
	stored, err := f.artifacts.LoadChunks("alpha")
	require.NoError(t, err)
	assert.Len(t, stored, 3)

	entries, err := f.manager.GetByTitle(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "alpha_chunk_0", entries[0].ID)
	assert.Equal(t, "alpha.txt", entries[0].Metadata.SourceFile)
	assert.Equal(t, "hashing-64", entries[0].Metadata.EmbeddingModel)
}

func TestIngestFiles_NothingMatched(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.IngestFiles(context.Background(), []string{filepath.Join(f.dir, "*.pdf")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestIngestFiles_TitleCollision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	md := f.write(t, "manual.md", "cabling colours", "timing source")
	txt := f.write(t, "manual.txt", "power budget")

	report, err := f.svc.IngestFiles(ctx, []string{txt, md})
	require.NoError(t, err)
	require.Len(t, report.Documents, 2)
	require.NoError(t, report.Documents[0].Err)
	assert.Equal(t, md, report.Documents[0].Path)
	assert.Equal(t, txt, report.Documents[1].Path)
	assert.ErrorIs(t, report.Documents[1].Err, domain.ErrDuplicateTitle)

	entries, err := f.manager.GetByTitle(ctx, "manual")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "manual.md", e.Metadata.SourceFile)
	}

	// A later run cannot take the title over either.
	rep := f.svc.IngestFile(ctx, txt)
	assert.ErrorIs(t, rep.Err, domain.ErrDuplicateTitle)
	entries, err = f.manager.GetByTitle(ctx, "manual")
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// The owning file re-ingests as usual.
	rep = f.svc.IngestFile(ctx, md)
	require.NoError(t, rep.Err)
}

func TestIngestFiles_Cancelled(t *testing.T) {
	f := newFixture(t)
	p := f.write(t, "alpha.txt", "text")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.svc.IngestFiles(ctx, []string{p})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, report.Documents)
}

func TestIngestFile_ReplacesDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.write(t, "alpha.txt", "one", "two", "three", "four")
	rep := f.svc.IngestFile(ctx, p)
	require.NoError(t, rep.Err)
	assert.Equal(t, 4, rep.Chunks)

	f.write(t, "alpha.txt", "one", "two")
	rep = f.svc.IngestFile(ctx, p)
	require.NoError(t, rep.Err)

	n, err := f.svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	recs, err := f.artifacts.LoadEmbeddings("alpha")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestRetryFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.embedder.poisoned.Store(true)
	p := f.write(t, "beta.txt", "clean segment", "poison segment", "another clean one")

	rep := f.svc.IngestFile(ctx, p)
	require.NoError(t, rep.Err)
	assert.Equal(t, 3, rep.Chunks)
	assert.Equal(t, 2, rep.Embedded)
	assert.Equal(t, 1, rep.Failed)

	failed, err := f.artifacts.LoadFailed("beta")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].ChunkIndex)

	// Still poisoned: nothing recovers and the record stays.
	rr, err := f.svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, RetryReport{Retried: 1, Recovered: 0, Remaining: 1}, rr)

	f.embedder.poisoned.Store(false)
	rr, err = f.svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, RetryReport{Retried: 1, Recovered: 1, Remaining: 0}, rr)

	n, err := f.svc.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	failed, err = f.artifacts.LoadFailed("")
	require.NoError(t, err)
	assert.Empty(t, failed)

	rr, err = f.svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, RetryReport{}, rr)
}

func TestRebuildIndex(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.IngestFiles(ctx, []string{
		f.write(t, "alpha.txt", "one", "two"),
		f.write(t, "beta.txt", "three"),
	})
	require.NoError(t, err)

	fresh := index.NewManager(memory.NewStorage())
	rebuilt := NewRAGService(nil, nil, fresh, nil, nil, WithArtifacts(f.artifacts))
	n, err := rebuilt.RebuildIndex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	titles, err := fresh.Titles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, titles)
}

func TestQueryAndAnswer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.IngestFiles(ctx, []string{
		f.write(t, "alpha.txt", "the clock is synchronised with ptp", "fronthaul latency budget"),
		f.write(t, "beta.txt", "power supply is out of scope"),
	})
	require.NoError(t, err)

	results, err := f.svc.Query(ctx, "what does document alpha say", 1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(results), 2)
	assert.Equal(t, domain.OriginMetadata, results[0].Origin)
	assert.Equal(t, "alpha", results[0].Source)
	assert.Equal(t, retriever.ExactScore, results[0].Score)
	assert.LessOrEqual(t, len(results), 3)

	ans, err := f.svc.Answer(ctx, "how is the clock synchronised in document alpha", 2)
	require.NoError(t, err)
	assert.Contains(t, ans.Text, "Sources: alpha")
	assert.Contains(t, ans.Prompt, "Source: alpha")

	_, err = f.svc.Query(ctx, "  ", 3)
	assert.ErrorIs(t, err, domain.ErrInvalidQuery)
}

func TestRetryFailed_WithoutArtifacts(t *testing.T) {
	svc := NewRAGService(nil, nil, index.NewManager(memory.NewStorage()), nil, nil)
	_, err := svc.RetryFailed(context.Background())
	assert.Error(t, err)
}

func TestExpandPaths(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.txt", "b.md", "c.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	got, err := expandPaths([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.md")}, got)

	got, err = expandPaths([]string{filepath.Join(dir, "*"), filepath.Join(dir, "a.txt")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.md")}, got)

	got, err = expandPaths([]string{filepath.Join(dir, "c.png")})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "c.png")}, got)

	got, err = expandPaths([]string{filepath.Join(dir, "*.pdf")})
	require.NoError(t, err)
	assert.Empty(t, got)

	missing := filepath.Join(dir, "missing.pdf")
	got, err = expandPaths([]string{missing, filepath.Join(dir, "*.docx")})
	require.NoError(t, err)
	assert.Equal(t, []string{missing}, got)
}

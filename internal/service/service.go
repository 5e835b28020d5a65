// Package service wires extraction, chunking, embedding, indexing,
// retrieval and answer generation into the operations exposed by the CLI
// and the TUI.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docrag/internal/artifact"
	"docrag/internal/assembler"
	"docrag/internal/domain"
	"docrag/internal/embedding"
	"docrag/internal/extract"
	"docrag/internal/index"
	"docrag/internal/logger"
)

// ExtractFunc reads one source file.
type ExtractFunc func(path string) (domain.Document, error)

// RAGService is the application facade.
type RAGService struct {
	extract   ExtractFunc
	chunker   domain.Chunker
	embedder  *embedding.Orchestrator
	index     *index.Manager
	artifacts *artifact.Store
	retriever domain.Retriever
	assembler *assembler.Assembler

	pageThreshold int
	pageSize      int
}

// Option configures a RAGService.
type Option func(*RAGService)

// WithExtractor replaces extract.Extract.
func WithExtractor(fn ExtractFunc) Option {
	return func(s *RAGService) {
		if fn != nil {
			s.extract = fn
		}
	}
}

// WithArtifacts persists text, chunk, embedding and failure artifacts.
// Without a store, RetryFailed and RebuildIndex are unavailable.
func WithArtifacts(store *artifact.Store) Option {
	return func(s *RAGService) { s.artifacts = store }
}

// WithPaging sets when chunk artifacts are split into part files.
func WithPaging(threshold, pageSize int) Option {
	return func(s *RAGService) {
		s.pageThreshold = threshold
		s.pageSize = pageSize
	}
}

func NewRAGService(chunker domain.Chunker, embedder *embedding.Orchestrator, idx *index.Manager, retriever domain.Retriever, asm *assembler.Assembler, opts ...Option) *RAGService {
	s := &RAGService{
		extract:       extract.Extract,
		chunker:       chunker,
		embedder:      embedder,
		index:         idx,
		retriever:     retriever,
		assembler:     asm,
		pageThreshold: 5000,
		pageSize:      2000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DocumentReport is the outcome of ingesting one file.
type DocumentReport struct {
	Path     string
	Title    string
	Chunks   int
	Embedded int
	Failed   int
	Skipped  int
	Elapsed  time.Duration
	Err      error
}

// IngestReport collects per-document outcomes of a batch.
type IngestReport struct {
	Documents []DocumentReport
}

// Errors returns the reports of documents that could not be ingested.
func (r IngestReport) Errors() []DocumentReport {
	var out []DocumentReport
	for _, d := range r.Documents {
		if d.Err != nil {
			out = append(out, d)
		}
	}
	return out
}

// Totals sums chunk counts over all documents.
func (r IngestReport) Totals() (chunks, embedded, failed int) {
	for _, d := range r.Documents {
		chunks += d.Chunks
		embedded += d.Embedded
		failed += d.Failed
	}
	return
}

// IngestFiles ingests every file matched by paths. A failing document is
// recorded in the report and the batch continues; the returned error is
// non-nil only when ctx is done or nothing matched. Titles must be unique:
// a file whose title was already claimed earlier in the batch is reported
// with domain.ErrDuplicateTitle and left out.
func (s *RAGService) IngestFiles(ctx context.Context, paths []string) (IngestReport, error) {
	var report IngestReport
	files, err := expandPaths(paths)
	if err != nil {
		return report, err
	}
	if len(files) == 0 {
		return report, fmt.Errorf("%w: no documents matched %v", domain.ErrNotFound, paths)
	}
	logger.Section("Ingest")
	owners := make(map[string]string, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		title := extract.Title(f)
		if prev, ok := owners[title]; ok {
			err := fmt.Errorf("%w: %s and %s both map to %q", domain.ErrDuplicateTitle, prev, f, title)
			logger.Error("ingest %s: %v", f, err)
			report.Documents = append(report.Documents, DocumentReport{Path: f, Title: title, Err: err})
			continue
		}
		owners[title] = f
		doc := s.IngestFile(ctx, f)
		report.Documents = append(report.Documents, doc)
		if doc.Err != nil && ctx.Err() != nil {
			return report, ctx.Err()
		}
	}
	return report, nil
}

// IngestFile runs the whole pipeline for one file and replaces the
// document's previous entries in the index.
func (s *RAGService) IngestFile(ctx context.Context, path string) DocumentReport {
	start := time.Now()
	rep := DocumentReport{Path: path}
	defer func() {
		rep.Elapsed = time.Since(start)
		if rep.Err != nil {
			logger.Error("ingest %s: %v", path, rep.Err)
		}
	}()

	doc, err := s.extract(path)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.Title = doc.Title
	if err := s.checkOwner(ctx, doc); err != nil {
		rep.Err = err
		return rep
	}
	if s.artifacts != nil {
		if err := s.artifacts.SaveText(doc); err != nil {
			rep.Err = fmt.Errorf("save text: %w", err)
			return rep
		}
	}

	chunks, err := s.chunker.Chunk(doc)
	if err != nil {
		rep.Err = fmt.Errorf("chunk %s: %w", doc.Title, err)
		return rep
	}
	if len(chunks) == 0 {
		rep.Err = fmt.Errorf("%w: %s produced no chunks", domain.ErrEmptyDocument, doc.Title)
		return rep
	}
	rep.Chunks = len(chunks)
	if s.artifacts != nil {
		if _, err := s.artifacts.SaveChunks(doc.Title, chunks, s.pageThreshold, s.pageSize); err != nil {
			rep.Err = fmt.Errorf("save chunks: %w", err)
			return rep
		}
	}

	embedded, failed, err := s.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		rep.Err = err
		return rep
	}
	rep.Embedded = len(embedded)
	rep.Failed = len(failed)
	if err := s.persistEmbeddings(doc, embedded, failed); err != nil {
		rep.Err = err
		return rep
	}

	entries := make([]domain.IndexEntry, len(embedded))
	for i, ec := range embedded {
		entries[i] = index.NewEntry(ec, doc.Metadata.SourceFile)
	}
	up, err := s.index.ReplaceDocument(ctx, doc.Title, entries)
	if err != nil {
		rep.Err = fmt.Errorf("index %s: %w", doc.Title, err)
		return rep
	}
	rep.Skipped = len(up.Skipped)
	logger.Info("ingested %s: %d chunks, %d indexed, %d failed (%s)",
		doc.Title, rep.Chunks, up.Upserted, rep.Failed, time.Since(start).Round(time.Millisecond))
	return rep
}

// checkOwner fails when the title is already indexed from another source file.
func (s *RAGService) checkOwner(ctx context.Context, doc domain.Document) error {
	existing, err := s.index.GetByTitle(ctx, doc.Title)
	if err != nil {
		return fmt.Errorf("index %s: %w", doc.Title, err)
	}
	for _, e := range existing {
		if e.Metadata.SourceFile != doc.Metadata.SourceFile {
			return fmt.Errorf("%w: %q is already indexed from %s", domain.ErrDuplicateTitle, doc.Title, e.Metadata.SourceFile)
		}
	}
	return nil
}

func (s *RAGService) persistEmbeddings(doc domain.Document, embedded []domain.EmbeddedChunk, failed []domain.FailedChunk) error {
	if s.artifacts == nil {
		return nil
	}
	if err := s.artifacts.ResetDocument(doc.Title); err != nil {
		return fmt.Errorf("reset artifacts: %w", err)
	}
	for _, ec := range embedded {
		if err := s.artifacts.SaveEmbedding(artifact.NewEmbeddingRecord(ec, doc.Metadata.SourceFile)); err != nil {
			return fmt.Errorf("save embedding: %w", err)
		}
	}
	for _, fc := range failed {
		if err := s.artifacts.SaveFailed(artifact.NewFailedChunkRecord(fc, doc.Metadata.SourceFile)); err != nil {
			return fmt.Errorf("save failed chunk: %w", err)
		}
	}
	return nil
}

// RetryReport is the outcome of RetryFailed.
type RetryReport struct {
	Retried   int
	Recovered int
	Remaining int
}

var errNoArtifacts = errors.New("artifact store not configured")

// RetryFailed re-embeds every persisted failed chunk. Recovered chunks are
// upserted into the index and their failure record removed; chunks that
// were already embedded are left alone.
func (s *RAGService) RetryFailed(ctx context.Context) (RetryReport, error) {
	var report RetryReport
	if s.artifacts == nil {
		return report, errNoArtifacts
	}
	records, err := s.artifacts.LoadFailed("")
	if err != nil {
		return report, err
	}
	if len(records) == 0 {
		return report, nil
	}
	chunks := make([]domain.Chunk, len(records))
	sources := make(map[string]string, len(records))
	for i, r := range records {
		chunks[i] = r.Chunk()
		sources[index.EntryID(r.Title, r.ChunkIndex)] = r.SourceFile
	}
	report.Retried = len(chunks)

	embedded, failed, err := s.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return report, err
	}
	entries := make([]domain.IndexEntry, 0, len(embedded))
	for _, ec := range embedded {
		src := sources[index.EntryID(ec.Chunk.Title, ec.Chunk.Index)]
		if err := s.artifacts.SaveEmbedding(artifact.NewEmbeddingRecord(ec, src)); err != nil {
			return report, err
		}
		entries = append(entries, index.NewEntry(ec, src))
	}
	up, err := s.index.Upsert(ctx, entries)
	if err != nil {
		return report, fmt.Errorf("index recovered chunks: %w", err)
	}
	skipped := make(map[string]bool, len(up.Skipped))
	for _, sk := range up.Skipped {
		skipped[sk.ID] = true
	}
	for _, ec := range embedded {
		if skipped[index.EntryID(ec.Chunk.Title, ec.Chunk.Index)] {
			continue
		}
		if err := s.artifacts.RemoveFailed(ec.Chunk.Title, ec.Chunk.Index); err != nil {
			return report, err
		}
		report.Recovered++
	}
	for _, fc := range failed {
		src := sources[index.EntryID(fc.Chunk.Title, fc.Chunk.Index)]
		if err := s.artifacts.SaveFailed(artifact.NewFailedChunkRecord(fc, src)); err != nil {
			return report, err
		}
	}
	report.Remaining = report.Retried - report.Recovered
	logger.Info("retry: %d chunks, %d recovered, %d still failing", report.Retried, report.Recovered, report.Remaining)
	return report, nil
}

// RebuildIndex repopulates the index from persisted embedding artifacts
// without calling the embedder, one document at a time.
func (s *RAGService) RebuildIndex(ctx context.Context) (int, error) {
	if s.artifacts == nil {
		return 0, errNoArtifacts
	}
	records, err := s.artifacts.LoadEmbeddings("")
	if err != nil {
		return 0, err
	}
	total := 0
	for i := 0; i < len(records); {
		title := records[i].Title
		var entries []domain.IndexEntry
		for ; i < len(records) && records[i].Title == title; i++ {
			entries = append(entries, index.NewEntry(records[i].EmbeddedChunk(), records[i].SourceFile))
		}
		up, err := s.index.ReplaceDocument(ctx, title, entries)
		if err != nil {
			return total, fmt.Errorf("rebuild %s: %w", title, err)
		}
		total += up.Upserted
	}
	logger.Info("rebuilt index with %d entries", total)
	return total, nil
}

// Query returns ranked context chunks for query.
func (s *RAGService) Query(ctx context.Context, query string, topK int) ([]domain.RetrievalResult, error) {
	return s.retriever.Retrieve(ctx, query, topK)
}

// Answer retrieves context for query and generates a response from it.
func (s *RAGService) Answer(ctx context.Context, query string, topK int) (domain.Answer, error) {
	if s.assembler == nil {
		return domain.Answer{}, fmt.Errorf("%w: no generator configured", domain.ErrGeneration)
	}
	results, err := s.retriever.Retrieve(ctx, query, topK)
	if err != nil {
		return domain.Answer{}, err
	}
	return s.assembler.Answer(ctx, query, results)
}

func (s *RAGService) Titles(ctx context.Context) ([]string, error) {
	return s.index.Titles(ctx)
}

func (s *RAGService) Count(ctx context.Context) (int, error) {
	return s.index.Count(ctx)
}

// Package artifact persists the intermediate products of ingestion as
// JSON files: extracted text, chunk pages, per-chunk embeddings and
// failed chunks. Every file is validated against an embedded JSON schema
// on load.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"docrag/internal/chunker"
	"docrag/internal/domain"
)

const (
	textDir      = "text"
	chunksDir    = "chunks"
	embeddingDir = "embeddings"
	failedDir    = "failed"
)

// Store reads and writes artifacts under a root directory.
type Store struct {
	root string
}

// NewStore creates the artifact directories under root.
func NewStore(root string) (*Store, error) {
	for _, d := range []string{textDir, chunksDir, embeddingDir, failedDir} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("create artifact dir: %w", err)
		}
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string { return s.root }

func (s *Store) SaveText(doc domain.Document) error {
	return writeJSON(filepath.Join(s.root, textDir, doc.Title+".json"), NewTextRecord(doc))
}

func (s *Store) LoadText(title string) (domain.Document, error) {
	var rec TextRecord
	if err := readRecord(filepath.Join(s.root, textDir, title+".json"), kindText, &rec); err != nil {
		return domain.Document{}, err
	}
	return rec.Document(), nil
}

// SaveChunks writes the chunks of one document, replacing any earlier
// chunk files for the same title. Documents with more than threshold
// chunks are split into part files of at most pageSize chunks.
func (s *Store) SaveChunks(title string, chunks []domain.Chunk, threshold, pageSize int) ([]string, error) {
	if err := s.removeChunkFiles(title); err != nil {
		return nil, err
	}
	pages := chunker.Paginate(chunks, threshold, pageSize)
	paths := make([]string, 0, len(pages))
	for i, page := range pages {
		rec := ChunkRecord{Title: title, Chunks: make([]ChunkItem, len(page))}
		for j, c := range page {
			rec.Chunks[j] = ChunkItem{ChunkIndex: c.Index, ChunkContent: c.Content, TokenLength: c.TokenLength}
		}
		name := title + "_chunks.json"
		if len(pages) > 1 {
			rec.Part = i + 1
			name = fmt.Sprintf("%s_chunks_part%d.json", title, rec.Part)
		}
		p := filepath.Join(s.root, chunksDir, name)
		if err := writeJSON(p, rec); err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// LoadChunks re-assembles the chunks of a document from its chunk files
// in chunk index order.
func (s *Store) LoadChunks(title string) ([]domain.Chunk, error) {
	files, err := s.chunkFiles(title)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: chunks for %q", domain.ErrNotFound, title)
	}
	var out []domain.Chunk
	for _, f := range files {
		var rec ChunkRecord
		if err := readRecord(f, kindChunks, &rec); err != nil {
			return nil, err
		}
		for _, it := range rec.Chunks {
			out = append(out, domain.Chunk{
				Title:       rec.Title,
				Index:       it.ChunkIndex,
				Content:     it.ChunkContent,
				TokenLength: it.TokenLength,
				CharLength:  len([]rune(it.ChunkContent)),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// ResetDocument removes the embedding and failed records of a title so a
// re-ingest does not leave stale chunks behind.
func (s *Store) ResetDocument(title string) error {
	for _, dir := range []string{embeddingDir, failedDir} {
		files, err := s.perChunkFiles(dir, title)
		if err != nil {
			return err
		}
		for _, f := range files {
			if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
	}
	return nil
}

func (s *Store) SaveEmbedding(rec EmbeddingRecord) error {
	return writeJSON(s.perChunkPath(embeddingDir, rec.Title, rec.ChunkIndex), rec)
}

// LoadEmbeddings returns the embedding records of a title ordered by chunk
// index, or of every title when title is empty.
func (s *Store) LoadEmbeddings(title string) ([]EmbeddingRecord, error) {
	files, err := s.perChunkFiles(embeddingDir, title)
	if err != nil {
		return nil, err
	}
	out := make([]EmbeddingRecord, 0, len(files))
	for _, f := range files {
		var rec EmbeddingRecord
		if err := readRecord(f, kindEmbedding, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out, nil
}

func (s *Store) SaveFailed(rec FailedChunkRecord) error {
	return writeJSON(s.perChunkPath(failedDir, rec.Title, rec.ChunkIndex), rec)
}

// LoadFailed returns the failed chunk records of a title, or of every
// title when title is empty.
func (s *Store) LoadFailed(title string) ([]FailedChunkRecord, error) {
	files, err := s.perChunkFiles(failedDir, title)
	if err != nil {
		return nil, err
	}
	out := make([]FailedChunkRecord, 0, len(files))
	for _, f := range files {
		var rec FailedChunkRecord
		if err := readRecord(f, kindFailed, &rec); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Title != out[j].Title {
			return out[i].Title < out[j].Title
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out, nil
}

func (s *Store) RemoveFailed(title string, chunkIndex int) error {
	err := os.Remove(s.perChunkPath(failedDir, title, chunkIndex))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (s *Store) perChunkPath(dir, title string, idx int) string {
	return filepath.Join(s.root, dir, fmt.Sprintf("%s_chunk_%d.json", title, idx))
}

// perChunkFiles lists <title>_chunk_<n>.json files in dir. Names are
// matched exactly so titles that share a prefix do not collide.
func (s *Store) perChunkFiles(dir, title string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, dir))
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		base := strings.TrimSuffix(name, ".json")
		i := strings.LastIndex(base, "_chunk_")
		if i <= 0 {
			continue
		}
		if _, err := strconv.Atoi(base[i+len("_chunk_"):]); err != nil {
			continue
		}
		if title != "" && base[:i] != title {
			continue
		}
		out = append(out, filepath.Join(s.root, dir, name))
	}
	return out, nil
}

// chunkFiles returns the single chunk file of a title or its part files
// in part order.
func (s *Store) chunkFiles(title string) ([]string, error) {
	single := filepath.Join(s.root, chunksDir, title+"_chunks.json")
	if _, err := os.Stat(single); err == nil {
		return []string{single}, nil
	}
	return s.partFiles(title)
}

func (s *Store) partFiles(title string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, chunksDir))
	if err != nil {
		return nil, err
	}
	type part struct {
		n    int
		path string
	}
	var parts []part
	prefix := title + "_chunks_part"
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json"))
		if err != nil {
			continue
		}
		parts = append(parts, part{n, filepath.Join(s.root, chunksDir, name)})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].n < parts[j].n })
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.path
	}
	return out, nil
}

// removeChunkFiles drops the single file and every part file of a title;
// both may exist after the page settings changed.
func (s *Store) removeChunkFiles(title string) error {
	files, err := s.partFiles(title)
	if err != nil {
		return err
	}
	files = append(files, filepath.Join(s.root, chunksDir, title+"_chunks.json"))
	for _, f := range files {
		if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

func readRecord(path string, k kind, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return err
	}
	if err := decode(k, data, v); err != nil {
		return fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeJSON writes v through a temporary file so readers never observe a
// partial artifact.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

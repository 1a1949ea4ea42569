// Package rag ties the splitter, the embedding client and the store into
// document ingestion and query-by-text.
package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/lmarsden/marksearch/internal/splitter"
	"github.com/lmarsden/marksearch/internal/store"
	"github.com/lmarsden/marksearch/internal/vectordb"
	"github.com/lmarsden/marksearch/pkg/models"
	"github.com/rs/zerolog/log"
)

// RecordStore is the store surface the facade depends on.
type RecordStore interface {
	InsertBatch(ctx context.Context, texts []string, vectors [][]float32, subjects []string, metadataList []map[string]any) ([]int64, error)
	Search(ctx context.Context, vector []float32, opt store.SearchOptions) ([]models.SearchHit, error)
	Query(ctx context.Context, f *vectordb.Filter, fields []string, limit int) ([]vectordb.Record, error)
	DeleteByIDs(ctx context.Context, ids []int64) []int64
	ClearCollection(ctx context.Context, subject string) error
	Count(ctx context.Context) int64
}

// Embedder is the slice of ai.Client the facade needs.
type Embedder interface {
	Embed(text string) ([]float32, error)
	Chat(ctx context.Context, query string, contextDocs []string) (string, error)
}

// searchFields are the record fields carried onto hits so callers can show
// a chunk's full heading context.
var searchFields = []string{"text", "subject", "metadata", "title_path", "full_context", "parent_summary"}

// loadScanLimit bounds the startup scan that seeds the id-to-text map.
const loadScanLimit = 16384

// NoAnswerMessage is returned by Chat when retrieval finds nothing to
// ground an answer on.
const NoAnswerMessage = "Sorry, I could not find any information related to your question."

// App is the retrieval facade. It keeps an in-memory id-to-text map of
// what it has inserted; the map is not safe against the store being
// mutated by anything else.
type App struct {
	store        RecordStore
	client       Embedder
	chunkSize    int
	chunkOverlap int
	idText       map[int64]string
}

// New builds the facade and seeds the id-to-text map from the collection.
func New(ctx context.Context, rs RecordStore, client Embedder, chunkSize, chunkOverlap int) (*App, error) {
	if _, err := splitter.New(chunkSize, chunkOverlap); err != nil {
		return nil, err
	}
	a := &App{
		store:        rs,
		client:       client,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		idText:       map[int64]string{},
	}
	a.loadExisting(ctx)
	return a, nil
}

func (a *App) loadExisting(ctx context.Context) {
	recs, err := a.store.Query(ctx, nil, []string{"id", "text"}, loadScanLimit)
	if err != nil {
		log.Warn().Err(err).Msg("could not load existing records")
		return
	}
	for _, r := range recs {
		if r.ID != 0 {
			a.idText[r.ID] = r.Text
		}
	}
	log.Debug().Int("records", len(a.idText)).Msg("loaded existing records")
}

// IngestDocument splits a Markdown file, embeds every chunk and inserts
// the batch. The subject defaults to the file's base name; chunk metadata
// rides along JSON-encoded under the metadata field. Chunks that fail to
// embed are skipped with a warning.
func (a *App) IngestDocument(ctx context.Context, path, subject string, chunkSize, chunkOverlap int) (int, []int64, error) {
	if chunkSize <= 0 {
		chunkSize = a.chunkSize
		chunkOverlap = a.chunkOverlap
	}
	if subject == "" {
		base := filepath.Base(path)
		subject = strings.TrimSuffix(base, filepath.Ext(base))
	}

	sp, err := splitter.New(chunkSize, chunkOverlap)
	if err != nil {
		return 0, nil, err
	}
	chunks, err := sp.SplitFile(path)
	if err != nil {
		return 0, nil, err
	}
	if len(chunks) == 0 {
		return 0, nil, nil
	}

	var (
		texts    []string
		vectors  [][]float32
		metadata []map[string]any
	)
	for i, ch := range chunks {
		vec, err := a.client.Embed(ch.Text)
		if err != nil {
			log.Warn().Err(err).Int("chunk", i).Str("path", path).Msg("embedding failed, skipping chunk")
			continue
		}
		js, err := json.Marshal(ch.Metadata)
		if err != nil {
			log.Warn().Err(err).Int("chunk", i).Str("path", path).Msg("metadata encode failed, skipping chunk")
			continue
		}
		texts = append(texts, ch.Text)
		vectors = append(vectors, vec)
		metadata = append(metadata, map[string]any{
			"metadata":       string(js),
			"title_path":     ch.Metadata.TitlePath,
			"full_context":   ch.Metadata.FullContext,
			"parent_summary": ch.Metadata.ParentSummary,
		})
	}
	if len(texts) == 0 {
		return 0, nil, errors.New("no chunk could be embedded")
	}

	subjects := make([]string, len(texts))
	for i := range subjects {
		subjects[i] = subject
	}

	ids, err := a.store.InsertBatch(ctx, texts, vectors, subjects, metadata)
	if err != nil {
		return 0, nil, fmt.Errorf("insert chunks: %w", err)
	}
	for i, id := range ids {
		a.idText[id] = texts[i]
	}

	log.Info().Str("path", path).Str("subject", subject).Int("chunks", len(ids)).Msg("ingested document")
	return len(ids), ids, nil
}

// QueryText embeds the query and returns shaped hits; full_context is
// promoted to the context field when present. Zero hits return no results
// and no error.
func (a *App) QueryText(ctx context.Context, text string, limit int, includeSubdirectories bool) ([]models.SearchHit, error) {
	vec, err := a.client.Embed(text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := a.store.Search(ctx, vec, store.SearchOptions{
		Limit:                 limit,
		Fields:                searchFields,
		IncludeSubdirectories: includeSubdirectories,
	})
	if err != nil {
		return nil, err
	}

	for i := range hits {
		if fc, ok := hits[i].Extra["full_context"].(string); ok && fc != "" {
			hits[i].Context = fc
		}
	}
	return hits, nil
}

// Chat retrieves chunks relevant to the query and asks the model to
// answer over them. When retrieval comes back empty the caller gets
// NoAnswerMessage rather than an error.
func (a *App) Chat(ctx context.Context, query string, limit int) (string, error) {
	hits, err := a.QueryText(ctx, query, limit, true)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return NoAnswerMessage, nil
	}

	docs := make([]string, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, h.Text)
	}

	answer, err := a.client.Chat(ctx, query, docs)
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	return answer, nil
}

// InsertText embeds and stores a single text.
func (a *App) InsertText(ctx context.Context, text, subject string, metadata map[string]any) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, errors.New("text must not be empty")
	}
	vec, err := a.client.Embed(text)
	if err != nil {
		return 0, fmt.Errorf("embed text: %w", err)
	}

	var metadataList []map[string]any
	if metadata != nil {
		metadataList = []map[string]any{metadata}
	}
	ids, err := a.store.InsertBatch(ctx, []string{text}, [][]float32{vec}, []string{subject}, metadataList)
	if err != nil {
		return 0, err
	}
	a.idText[ids[0]] = text
	return ids[0], nil
}

// InsertBatchTexts embeds and stores several texts; texts that fail to
// embed are skipped with a warning.
func (a *App) InsertBatchTexts(ctx context.Context, texts, subjects []string, metadataList []map[string]any) ([]int64, error) {
	if len(texts) == 0 {
		return nil, errors.New("text list must not be empty")
	}

	var (
		validTexts    []string
		vectors       [][]float32
		validSubjects []string
		validMetadata []map[string]any
	)
	for i, text := range texts {
		vec, err := a.client.Embed(text)
		if err != nil {
			log.Warn().Err(err).Int("index", i).Msg("embedding failed, skipping text")
			continue
		}
		validTexts = append(validTexts, text)
		vectors = append(vectors, vec)
		if i < len(subjects) {
			validSubjects = append(validSubjects, subjects[i])
		} else {
			validSubjects = append(validSubjects, "")
		}
		if i < len(metadataList) {
			validMetadata = append(validMetadata, metadataList[i])
		} else {
			validMetadata = append(validMetadata, nil)
		}
	}
	if len(vectors) == 0 {
		return nil, errors.New("no text could be embedded")
	}

	ids, err := a.store.InsertBatch(ctx, validTexts, vectors, validSubjects, validMetadata)
	if err != nil {
		return nil, err
	}
	for i, id := range ids {
		a.idText[id] = validTexts[i]
	}
	return ids, nil
}

// DeleteByID removes one record previously seen by this facade.
func (a *App) DeleteByID(ctx context.Context, id int64) error {
	if _, ok := a.idText[id]; !ok {
		return fmt.Errorf("id %d does not exist", id)
	}
	deleted := a.store.DeleteByIDs(ctx, []int64{id})
	if len(deleted) == 0 {
		return fmt.Errorf("delete id %d failed", id)
	}
	delete(a.idText, id)
	return nil
}

// TextEntry is one stored text as listed by ListTexts.
type TextEntry struct {
	ID      int64
	Text    string
	Subject string
}

// ListTexts returns stored texts, narrowed to one subject when given.
func (a *App) ListTexts(ctx context.Context, subject string) ([]TextEntry, error) {
	var f *vectordb.Filter
	if subject != "" {
		f = &vectordb.Filter{Subject: subject}
	}
	recs, err := a.store.Query(ctx, f, []string{"id", "text", "subject"}, 0)
	if err != nil {
		return nil, err
	}

	entries := make([]TextEntry, 0, len(recs))
	for _, r := range recs {
		if r.ID == 0 || r.Text == "" {
			continue
		}
		subj := r.Subject
		if subj == "" {
			subj = store.DefaultSubject
		}
		entries = append(entries, TextEntry{ID: r.ID, Text: r.Text, Subject: subj})
	}
	return entries, nil
}

// Count reports how many records the collection holds.
func (a *App) Count(ctx context.Context) int64 {
	return a.store.Count(ctx)
}

// ClearAll removes every record, or only one subject's records when a
// subject is given, and refreshes the id-to-text map to match.
func (a *App) ClearAll(ctx context.Context, subject string) error {
	if err := a.store.ClearCollection(ctx, subject); err != nil {
		return err
	}
	a.idText = map[int64]string{}
	if subject != "" {
		a.loadExisting(ctx)
	}
	return nil
}

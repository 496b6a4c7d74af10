// Package ingest implements the asynchronous ingestion worker: a
// Supervisor that pulls jobs off the Queue and drives each document
// through the processing/reading/chunking/embedding/entities/neo4j/indexed
// state machine, with a configurable number of documents in flight.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ragservice/internal/apperr"
	"ragservice/internal/domain"
	"ragservice/internal/obs"
	"ragservice/internal/objectstore"
	"ragservice/internal/rag/chunker"
	"ragservice/internal/rag/entityextract"
	"ragservice/internal/store/graph"
	"ragservice/internal/store/meta"
	"ragservice/internal/store/queue"
	"ragservice/internal/store/vector"
)

// embedBatchSize bounds how many chunk texts are sent to the embedder in
// one request.
const embedBatchSize = 64

// entityConcurrency bounds how many chunks of one document are sent to
// the entity extractor concurrently.
const entityConcurrency = 8

// popTimeout is how long each BlockingPop waits before the supervisor loop
// rechecks for shutdown and concurrency changes.
const popTimeout = 2 * time.Second

// Embedder is the subset of internal/embedder.Client the worker needs.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Deps bundles every collaborator the worker drives documents through.
type Deps struct {
	Queue    *queue.Store
	Meta     *meta.Store
	Vector   *vector.Store
	Graph    graph.Store
	Objects  objectstore.ObjectStore
	Embedder Embedder
	Chunker  *chunker.Chunker
	Entities *entityextract.Extractor
	Logger   zerolog.Logger
	Metrics  obs.Metrics
}

// Supervisor owns the worker's concurrency limit and in-flight documents.
// Concurrency changes take effect for subsequent dequeues without
// interrupting in-flight work, via a resizable counting semaphore.
type Supervisor struct {
	deps Deps

	mu       sync.Mutex
	cond     *sync.Cond
	limit    int
	inFlight int
	wg       sync.WaitGroup
	stopped  bool
}

// NewSupervisor builds a Supervisor with an initial concurrency limit.
func NewSupervisor(deps Deps, concurrency int) *Supervisor {
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 32 {
		concurrency = 32
	}
	s := &Supervisor{deps: deps, limit: concurrency}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SetConcurrency changes the in-flight document limit at runtime.
func (s *Supervisor) SetConcurrency(n int) {
	if n < 1 {
		n = 1
	}
	if n > 32 {
		n = 32
	}
	s.mu.Lock()
	s.limit = n
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *Supervisor) acquire() {
	s.mu.Lock()
	for s.inFlight >= s.limit && !s.stopped {
		s.cond.Wait()
	}
	s.inFlight++
	s.mu.Unlock()
}

func (s *Supervisor) release() {
	s.mu.Lock()
	s.inFlight--
	s.mu.Unlock()
	s.cond.Signal()
}

// Start runs the dequeue loop until ctx is cancelled or Stop is called.
// It blocks until every in-flight document finishes.
func (s *Supervisor) Start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		default:
		}

		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if stopped {
			s.wg.Wait()
			return
		}

		job, ok, err := s.deps.Queue.BlockingPop(ctx, popTimeout)
		if err != nil {
			s.deps.Logger.Warn().Err(err).Msg("queue pop failed, backing off")
			time.Sleep(time.Second)
			continue
		}
		if !ok {
			continue
		}

		s.acquire()
		s.wg.Add(1)
		go func(j domain.Job) {
			defer s.wg.Done()
			defer s.release()
			s.runDocument(ctx, j.DocID)
		}(job)
	}
}

// Stop signals the dequeue loop to exit and unblocks any goroutine
// parked in acquire(); it does not cancel in-flight stage work — callers
// should cancel the context passed to Start for that.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cond.Broadcast()
}

// Reset clears the stopped flag so a Supervisor that was Stop()'d can be
// handed to Start again. Callers must pass Start a fresh, not-yet-cancelled
// context; the one given to the prior Start call is spent.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	s.stopped = false
	s.mu.Unlock()
}

// runDocument drives one document through the full state machine.
func (s *Supervisor) runDocument(ctx context.Context, docID string) {
	log := s.deps.Logger.With().Str("doc_id", docID).Logger()

	doc, err := s.deps.Meta.GetDocumentAdmin(ctx, docID)
	if err != nil {
		log.Warn().Err(err).Msg("document missing, dropping job")
		return
	}
	if doc.Status != domain.StatusQueued && doc.Status != domain.StatusProcessing {
		log.Info().Str("status", string(doc.Status)).Msg("document already terminal, dropping job")
		return
	}

	s.emit(ctx, &doc, domain.StageProcessing, "starting ingestion")

	text, pages, err := s.stageReading(ctx, &doc)
	if err != nil {
		s.fail(ctx, &doc, err)
		return
	}

	chunks, err := s.stageChunking(ctx, &doc, text, pages)
	if err != nil {
		s.fail(ctx, &doc, err)
		return
	}

	if err := s.stageEmbedding(ctx, &doc, chunks); err != nil {
		s.fail(ctx, &doc, err)
		return
	}

	entitiesByChunk := s.stageEntities(ctx, &doc, chunks)

	s.stageNeo4j(ctx, &doc, chunks, entitiesByChunk)

	s.stageIndexed(ctx, &doc)
}

func (s *Supervisor) stageReading(ctx context.Context, doc *domain.Document) (string, []domain.Page, error) {
	s.emit(ctx, doc, domain.StageReading, "extracting text")

	reader, _, err := s.deps.Objects.Get(ctx, doc.StoragePath)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindDependencyFatal, "read stored document", err)
	}
	defer reader.Close()

	data, err := readAll(reader)
	if err != nil {
		return "", nil, apperr.Wrap(apperr.KindDependencyFatal, "read stored document body", err)
	}

	text, pages, err := extractText(doc.ContentType, data)
	if err != nil {
		return "", nil, err
	}
	return text, pages, nil
}

func (s *Supervisor) stageChunking(ctx context.Context, doc *domain.Document, text string, pages []domain.Page) ([]domain.Chunk, error) {
	s.emit(ctx, doc, domain.StageChunking, "chunking document")

	proposals, err := s.deps.Chunker.Chunk(ctx, text, pages)
	if err != nil {
		return nil, err
	}

	chunks := make([]domain.Chunk, len(proposals))
	for i, p := range proposals {
		chunks[i] = domain.Chunk{
			ChunkID:      uuid.NewString(),
			DocID:        doc.DocID,
			ScopeKey:     doc.ScopeKey,
			StartChar:    p.StartChar,
			EndChar:      p.EndChar,
			Pages:        p.Pages,
			Title:        p.Title,
			Section:      p.Section,
			Summary:      p.Summary,
			WhyThisChunk: p.WhyThisChunk,
			Text:         p.Text,
		}
	}

	count := len(chunks)
	if err := s.deps.Meta.UpdateDocument(ctx, doc.DocID, meta.DocumentUpdate{ChunkCount: &count}); err != nil {
		return nil, err
	}
	doc.ChunkCount = count
	return chunks, nil
}

func (s *Supervisor) stageEmbedding(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	s.emit(ctx, doc, domain.StageEmbedding, "embedding chunks")

	if err := s.deps.Vector.EnsureCollection(ctx); err != nil {
		return err
	}

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vectors, err := s.deps.Embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(vectors) != len(batch) {
			return apperr.New(apperr.KindDependencyFatal, "embedder returned a mismatched vector count")
		}
		for i, c := range batch {
			if err := s.deps.Vector.Insert(ctx, c, vectors[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

// stageEntities is best-effort per chunk: a chunk-level failure is logged
// and skipped, never fails the document.
func (s *Supervisor) stageEntities(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) map[string][]domain.Entity {
	s.emit(ctx, doc, domain.StageEntities, "extracting entities")

	byChunk := map[string][]domain.Entity{}
	var mu sync.Mutex

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(entityConcurrency)
	for _, c := range chunks {
		c := c
		group.Go(func() error {
			entities, err := s.deps.Entities.Extract(groupCtx, c.Text)
			if err != nil {
				s.deps.Logger.Warn().Err(err).Str("chunk_id", c.ChunkID).Msg("entity extraction failed for chunk")
				return nil
			}
			if len(entities) == 0 {
				return nil
			}
			mu.Lock()
			byChunk[c.ChunkID] = entities
			mu.Unlock()
			return nil
		})
	}
	_ = group.Wait()

	total := 0
	for _, ents := range byChunk {
		total += len(ents)
	}
	_ = s.deps.Meta.UpdateDocument(ctx, doc.DocID, meta.DocumentUpdate{EntityCount: &total})
	doc.EntityCount = total
	return byChunk
}

// stageNeo4j links entities into GraphStore. A disabled or unreachable
// store (graph.NoopStore, or a live store erroring transiently) is
// skipped silently; progress still advances to 100.
func (s *Supervisor) stageNeo4j(ctx context.Context, doc *domain.Document, chunks []domain.Chunk, entitiesByChunk map[string][]domain.Entity) {
	s.emit(ctx, doc, domain.StageNeo4j, "linking entities into graph store")

	for _, c := range chunks {
		entities, ok := entitiesByChunk[c.ChunkID]
		if !ok || len(entities) == 0 {
			continue
		}
		if err := s.deps.Graph.LinkChunkEntities(ctx, c, entities); err != nil {
			s.deps.Logger.Warn().Err(err).Str("chunk_id", c.ChunkID).Msg("graph store link failed, skipping")
		}
	}
}

func (s *Supervisor) stageIndexed(ctx context.Context, doc *domain.Document) {
	status := domain.StatusIndexed
	stage := domain.StageIndexed
	progress := domain.StageProgress[domain.StageIndexed]
	_ = s.deps.Meta.UpdateDocument(ctx, doc.DocID, meta.DocumentUpdate{
		Status: &status, Stage: &stage, Progress: &progress,
	})
	doc.Status = status
	doc.Stage = stage
	doc.Progress = progress
	s.emitMessage(ctx, *doc, domain.StageIndexed, progress, "ingestion complete")
}

// fail transitions doc to its terminal failed state. doc.Progress must
// already reflect the last stage emit reached (emit keeps it current as
// the document advances), so the terminal ProgressEvent reports the real
// last-known progress rather than regressing to the document's initial
// load value.
func (s *Supervisor) fail(ctx context.Context, doc *domain.Document, cause error) {
	status := domain.StatusFailed
	stage := domain.StageFailed
	message := cause.Error()
	_ = s.deps.Meta.UpdateDocument(ctx, doc.DocID, meta.DocumentUpdate{
		Status: &status, Stage: &stage, ErrorMessage: &message,
	})
	doc.Status = status
	doc.Stage = stage
	doc.ErrorMessage = message
	s.deps.Logger.Error().Err(cause).Str("doc_id", doc.DocID).Msg("document ingestion failed")
	s.emitMessage(ctx, *doc, domain.StageFailed, doc.Progress, message)
}

// emit writes the stage's canonical progress value to the snapshot key
// and publishes it, per the monotonic-progress emission policy. It also
// updates doc.Stage/doc.Progress in place so that a later fail(ctx, doc,
// err) call sees the real last-emitted progress rather than doc's
// initial load value.
func (s *Supervisor) emit(ctx context.Context, doc *domain.Document, stage domain.Stage, message string) {
	progress := domain.StageProgress[stage]
	doc.Stage = stage
	doc.Progress = progress
	_ = s.deps.Meta.UpdateDocument(ctx, doc.DocID, meta.DocumentUpdate{Stage: &stage, Progress: &progress})
	s.emitMessage(ctx, *doc, stage, progress, message)
}

func (s *Supervisor) emitMessage(ctx context.Context, doc domain.Document, stage domain.Stage, progress int, message string) {
	event := domain.ProgressEvent{
		DocID:     doc.DocID,
		ScopeKey:  doc.ScopeKey,
		Filename:  doc.Filename,
		Stage:     stage,
		Progress:  progress,
		Message:   message,
		Timestamp: nowFunc(),
	}
	if err := s.deps.Queue.SetProgress(ctx, event); err != nil {
		s.deps.Logger.Warn().Err(err).Msg("failed to persist progress snapshot")
	}
	if err := s.deps.Queue.Publish(ctx, event); err != nil {
		s.deps.Logger.Warn().Err(err).Msg("failed to publish progress event")
	}
	s.deps.Metrics.IncCounter("ingest_stage_transitions_total", map[string]string{"stage": string(stage)})
}

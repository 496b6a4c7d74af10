package domain

import "time"

// Status is the coarse persisted lifecycle of a Document.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusIndexed    Status = "indexed"
	StatusFailed     Status = "failed"
)

// Stage is the fine-grained ingestion stage, both persisted (as a subset)
// and emitted on every ProgressEvent.
type Stage string

const (
	StageQueued     Stage = "queued"
	StageProcessing Stage = "processing"
	StageReading    Stage = "reading"
	StageChunking   Stage = "chunking"
	StageEmbedding  Stage = "embedding"
	StageEntities   Stage = "entities"
	StageNeo4j      Stage = "neo4j"
	StageIndexed    Stage = "indexed"
	StageFailed     Stage = "failed"
)

// StageProgress maps each stage to its monotonic progress value.
var StageProgress = map[Stage]int{
	StageQueued:     0,
	StageProcessing: 5,
	StageReading:    10,
	StageChunking:   35,
	StageEmbedding:  55,
	StageEntities:   85,
	StageNeo4j:      95,
	StageIndexed:    100,
}

// Document is the persisted metadata record for one uploaded file.
type Document struct {
	DocID        string    `json:"doc_id"`
	ScopeKey     ScopeKey  `json:"scope_key"`
	Filename     string    `json:"filename"`
	ContentType  string    `json:"content_type"`
	StoragePath  string    `json:"storage_path"`
	Status       Status    `json:"status"`
	Stage        Stage     `json:"stage"`
	Progress     int       `json:"progress"`
	ErrorMessage string    `json:"error_message,omitempty"`
	ChunkCount   int       `json:"chunk_count"`
	EntityCount  int       `json:"entity_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Page is one unit of source pagination: a PDF page, or a pseudo-page
// synthesized for Markdown/plain-text sources.
type Page struct {
	Number     int
	StartChar  int
	EndChar    int
}

// Chunk is an immutable unit of retrievable text produced by the chunker.
type Chunk struct {
	ChunkID       string   `json:"chunk_id"`
	DocID         string   `json:"doc_id"`
	ScopeKey      ScopeKey `json:"scope_key"`
	StartChar     int      `json:"start_char"`
	EndChar       int      `json:"end_char"`
	Pages         []int    `json:"pages"`
	Title         string   `json:"title,omitempty"`
	Section       string   `json:"section,omitempty"`
	Summary       string   `json:"summary,omitempty"`
	WhyThisChunk  string   `json:"why_this_chunk,omitempty"`
	Text          string   `json:"text"`
}

// Entity is a normalized named entity mentioned by one or more chunks.
type Entity struct {
	EntityID string `json:"entity_id"`
	Name     string `json:"name"`
	Type     string `json:"type"`
}

// ProgressEvent is a snapshot of a document's ingestion state.
type ProgressEvent struct {
	DocID     string    `json:"doc_id"`
	ScopeKey  ScopeKey  `json:"scope_key"`
	Filename  string    `json:"filename,omitempty"`
	Stage     Stage     `json:"stage"`
	Progress  int       `json:"progress"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Job is the queue payload: everything else is looked up from MetaStore.
type Job struct {
	DocID string `json:"doc_id"`
}

// LLMChunkResponse is the strictly-decoded shape the chunker LLM call must
// return for each window.
type LLMChunkResponse struct {
	Text         string `json:"text"`
	Title        string `json:"title"`
	Section      string `json:"section"`
	Summary      string `json:"summary"`
	WhyThisChunk string `json:"why_this_chunk"`
	StartChar    *int   `json:"start_char,omitempty"`
	EndChar      *int   `json:"end_char,omitempty"`
	Pages        []int  `json:"pages,omitempty"`
}

// LLMEntity is the strictly-decoded shape the entity-extractor LLM call
// must return per chunk.
type LLMEntity struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Package retrieval implements the RAG pipeline: structure-aware chunking,
// degradation-tolerant embedding, namespaced vector upsert, hybrid search
// with Reciprocal Rank Fusion, and context-augmented completion.
package retrieval

import (
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// ChunkingConfig controls how ingested text is split. Sizes are measured in
// characters.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	MinChunkSize int `yaml:"min_chunk_size" json:"min_chunk_size"`
}

// DefaultChunkingConfig is used for every index type without an override.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{ChunkSize: 1000, ChunkOverlap: 200, MinChunkSize: 50}
}

// LegalChunkingConfig uses larger chunks so clauses survive intact.
func LegalChunkingConfig() ChunkingConfig {
	return ChunkingConfig{ChunkSize: 1600, ChunkOverlap: 320, MinChunkSize: 50}
}

// ConfigForIndexType selects the chunking configuration by index type.
func ConfigForIndexType(indexType string) ChunkingConfig {
	switch indexType {
	case "legal":
		return LegalChunkingConfig()
	default:
		return DefaultChunkingConfig()
	}
}

// Chunk is one immutable piece of an ingested document. Index increases
// strictly from 0 within a document; PageNumber is estimated from the
// cumulative character offset.
type Chunk struct {
	DocumentID string         `json:"document_id"`
	OrgID      string         `json:"org_id"`
	Index      int            `json:"index"`
	Text       string         `json:"text"`
	PageNumber int            `json:"page_number"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// charsPerPage approximates a printed page for page-number estimation.
const charsPerPage = 1800

// Chunker splits documents on structure first and size second.
type Chunker struct {
	cfg    ChunkingConfig
	logger *zap.Logger
}

func NewChunker(cfg ChunkingConfig, logger *zap.Logger) *Chunker {
	if cfg.ChunkSize <= 0 {
		cfg = DefaultChunkingConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chunker{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "retrieval.chunker")),
	}
}

// sectionPattern splits on markdown headers and blank-line paragraph breaks.
var sectionPattern = regexp.MustCompile(`(?m)(?:^#{1,6}\s)|(?:\n\s*\n)`)

type piece struct {
	text   string
	offset int
}

// Split chunks text for one document. Sections below the minimum length are
// dropped and never stored; retained chunks get consecutive indices starting
// at 0 regardless of drops. The page number comes from the chunk's character
// offset within the original text.
func (c *Chunker) Split(documentID, orgID, text string, metadata map[string]any) []Chunk {
	sections := c.splitSections(text)

	chunks := make([]Chunk, 0, len(sections))
	index := 0
	sectionOffset := 0
	for _, section := range sections {
		pieces := []piece{{text: section, offset: sectionOffset}}
		if len(section) > c.cfg.ChunkSize {
			pieces = c.splitBySize(section, sectionOffset)
		}
		for _, p := range pieces {
			trimmed := strings.TrimSpace(p.text)
			if len(trimmed) < c.cfg.MinChunkSize {
				continue
			}
			chunks = append(chunks, Chunk{
				DocumentID: documentID,
				OrgID:      orgID,
				Index:      index,
				Text:       trimmed,
				PageNumber: p.offset/charsPerPage + 1,
				Metadata:   metadata,
			})
			index++
		}
		sectionOffset += len(section)
	}

	c.logger.Debug("document chunked",
		zap.String("document_id", documentID),
		zap.Int("sections", len(sections)),
		zap.Int("chunks", len(chunks)))
	return chunks
}

// splitSections breaks text on document structure. The header or break
// markers themselves stay attached to the following section's text.
func (c *Chunker) splitSections(text string) []string {
	locs := sectionPattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return []string{text}
	}

	sections := make([]string, 0, len(locs)+1)
	prev := 0
	for _, loc := range locs {
		if loc[0] > prev {
			sections = append(sections, text[prev:loc[0]])
		}
		prev = loc[0]
	}
	if prev < len(text) {
		sections = append(sections, text[prev:])
	}
	return sections
}

// splitBySize slices an oversize section into fixed windows with overlap.
func (c *Chunker) splitBySize(section string, base int) []piece {
	step := c.cfg.ChunkSize - c.cfg.ChunkOverlap
	if step <= 0 {
		step = c.cfg.ChunkSize
	}

	var pieces []piece
	for start := 0; start < len(section); start += step {
		end := start + c.cfg.ChunkSize
		if end > len(section) {
			end = len(section)
		}
		pieces = append(pieces, piece{text: section[start:end], offset: base + start})
		if end == len(section) {
			break
		}
	}
	return pieces
}

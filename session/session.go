// Package session keeps per-session state in memory: the ingested document,
// its knowledge graph and vector index, and the chat transcript. Nothing is
// persisted; a restart clears everything.
package session

import (
	"log"
	"sync"

	"github.com/fabfab/cognigraph/chunk"
	"github.com/fabfab/cognigraph/graph"
	"github.com/fabfab/cognigraph/vector"
)

type Message struct {
	Role    string
	Content string
}

// Session holds everything derived from one uploaded document. A new upload
// replaces the whole session atomically.
type Session struct {
	ID           string
	DocumentID   string
	DocumentName string
	Text         string
	Chunks       []chunk.Chunk
	Graph        *graph.Graph
	Index        *vector.Index
	Transcript   []Message
}

// Handle serializes access to one session's state. Update runs fn with the
// current session (nil before the first upload); a non-nil return value
// replaces the stored session.
type Handle struct {
	mu   sync.Mutex
	sess *Session
}

func (h *Handle) Update(fn func(*Session) (*Session, error)) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next, err := fn(h.sess)
	if err != nil {
		return err
	}
	if next != nil {
		h.sess = next
	}
	return nil
}

// Reset discards the session's document, graph, index and transcript.
func (h *Handle) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sess = nil
}

// Store maps session ids to handles, creating them lazily so a session exists
// from the first request that names it.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Handle
	logger   *log.Logger
}

func NewStore(logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Default()
	}
	return &Store{
		sessions: make(map[string]*Handle),
		logger:   logger,
	}
}

func (s *Store) Get(id string) *Handle {
	s.mu.RLock()
	h, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return h
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok = s.sessions[id]; ok {
		return h
	}

	h = &Handle{}
	s.sessions[id] = h
	s.logger.Printf("session %s created", id)
	return h
}

// Len returns the number of known sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

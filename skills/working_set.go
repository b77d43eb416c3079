package skills

import (
	"sort"
	"sync"
)

// WorkingSet caches the Level 2 documents one session has loaded
type WorkingSet struct {
	index *Index

	mu   sync.Mutex
	docs map[string]*Document
}

// NewWorkingSet creates an empty working set over idx
func NewWorkingSet(idx *Index) *WorkingSet {
	return &WorkingSet{index: idx, docs: make(map[string]*Document)}
}

// Get returns the document, loading it on first use
func (w *WorkingSet) Get(name string) (*Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if doc, ok := w.docs[name]; ok {
		return doc, nil
	}
	doc, err := w.index.Document(name)
	if err != nil {
		return nil, err
	}
	w.docs[name] = doc
	return doc, nil
}

// Loaded lists the names of cached documents
func (w *WorkingSet) Loaded() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.docs))
	for name := range w.docs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Reset drops every cached document
func (w *WorkingSet) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.docs = make(map[string]*Document)
}

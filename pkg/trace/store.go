package trace

import (
	lru "github.com/hashicorp/golang-lru"
)

// WindowSource is what a streaming trace producer supplies when it cannot
// give the core O(1) random access directly: the ability to reproduce any
// contiguous window of events on demand (e.g. by re-running its own
// decoder from a checkpoint). Neither bundled parser needs this — both
// read their whole input eagerly into a Slice — but spec §9 anticipates
// "extremely long traces" needing a "windowed cache keyed by index range",
// so the core's ingestion layer supports it.
type WindowSource interface {
	Len() int
	Window(start, count int) ([]Event, error)
}

// LRUStore is a Sequence backed by an LRU cache of fixed-size windows,
// fetched from a WindowSource on miss. It gives the core the O(1)-amortized
// random access it requires without holding the whole trace in memory.
type LRUStore struct {
	src        WindowSource
	windowSize int
	cache      *lru.Cache
}

// NewLRUStore builds a windowed cache over src. windowSize is the number of
// events fetched per miss; cacheWindows bounds how many windows are kept
// resident at once.
func NewLRUStore(src WindowSource, windowSize, cacheWindows int) (*LRUStore, error) {
	if windowSize <= 0 {
		windowSize = 4096
	}
	if cacheWindows <= 0 {
		cacheWindows = 16
	}
	c, err := lru.New(cacheWindows)
	if err != nil {
		return nil, err
	}
	return &LRUStore{src: src, windowSize: windowSize, cache: c}, nil
}

func (s *LRUStore) Len() int { return s.src.Len() }

func (s *LRUStore) Event(i int) (Event, error) {
	if i < 0 || i >= s.src.Len() {
		return Event{}, &FormatError{Index: i, Reason: "index out of range"}
	}
	winIdx := i / s.windowSize
	var window []Event
	if v, ok := s.cache.Get(winIdx); ok {
		window = v.([]Event)
	} else {
		start := winIdx * s.windowSize
		count := s.windowSize
		if start+count > s.src.Len() {
			count = s.src.Len() - start
		}
		var err error
		window, err = s.src.Window(start, count)
		if err != nil {
			return Event{}, err
		}
		s.cache.Add(winIdx, window)
	}
	off := i - winIdx*s.windowSize
	if off < 0 || off >= len(window) {
		return Event{}, &FormatError{Index: i, Reason: "window source returned short window"}
	}
	return window[off], nil
}

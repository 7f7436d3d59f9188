package classifier

import "sync"

// Memo is a per-run URL to Result cache. Entries are idempotent so the last
// writer wins.
type Memo struct {
	mu      sync.RWMutex
	entries map[string]Result
}

func NewMemo() *Memo {
	return &Memo{entries: make(map[string]Result)}
}

func (m *Memo) Get(url string) (Result, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.entries[url]
	return r, ok
}

func (m *Memo) Put(url string, r Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[url] = r
}

func (m *Memo) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// CachedClassifier memoizes Classify by product URL.
type CachedClassifier struct {
	*Classifier
	memo *Memo
}

func NewCached(c *Classifier, memo *Memo) *CachedClassifier {
	if memo == nil {
		memo = NewMemo()
	}
	return &CachedClassifier{Classifier: c, memo: memo}
}

func (c *CachedClassifier) Classify(name, url, description string) Result {
	if url == "" {
		return c.Classifier.Classify(name, url, description)
	}
	if r, ok := c.memo.Get(url); ok {
		return r
	}
	r := c.Classifier.Classify(name, url, description)
	c.memo.Put(url, r)
	return r
}

func (c *CachedClassifier) Memo() *Memo {
	return c.memo
}

package redis

import "sync"

// pending holds the newest deferred document per key.
type pending struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newPending() *pending { return &pending{docs: make(map[string][]byte)} }

func (p *pending) put(key string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.docs[key] = append([]byte(nil), data...)
}

// putIfAbsent re-queues a failed flush unless a newer save arrived meanwhile.
func (p *pending) putIfAbsent(key string, data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.docs[key]; !ok {
		p.docs[key] = data
	}
}

func (p *pending) get(key string) ([]byte, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d, ok := p.docs[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), d...), true
}

func (p *pending) drop(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.docs, key)
}

func (p *pending) take() map[string][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.docs
	p.docs = make(map[string][]byte)
	return out
}

func (p *pending) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.docs)
}

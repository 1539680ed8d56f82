package discovery

import (
	"sync"

	"github.com/itsnelsonvargas/ClickTok/internal/models"
)

// mailbox is an unbounded FIFO between the acquisition goroutine and the
// caller. Push never blocks; Pop blocks until an item arrives or the mailbox
// is closed and drained.
type mailbox struct {
	items  []models.Product
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
}

func newMailbox() *mailbox {
	m := &mailbox{
		items: make([]models.Product, 0),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

func (m *mailbox) push(p models.Product) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}

	m.items = append(m.items, p)
	m.cond.Signal()

	return true
}

func (m *mailbox) pop() (models.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.items) == 0 && !m.closed {
		m.cond.Wait()
	}

	if len(m.items) == 0 {
		return models.Product{}, false
	}

	p := m.items[0]
	m.items[0] = models.Product{}
	m.items = m.items[1:]

	return p, true
}

func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.cond.Broadcast()
}

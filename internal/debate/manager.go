package debate

import (
	"sync"

	"github.com/google/uuid"
)

// Context is the state of one channel's debate. Values handed out by the
// Manager are snapshots; all mutation goes through Manager methods.
type Context struct {
	ID          string
	ChannelID   string
	Topic       string
	Personality string
	TurnCount   int
	MaxTurns    int
}

// Manager holds per-channel debate contexts. A single mutex serializes all
// writes; once a debate ends it never comes back without an explicit Start.
type Manager struct {
	mu       sync.Mutex
	maxTurns int
	contexts map[string]*Context
}

func NewManager(maxTurns int) *Manager {
	if maxTurns <= 0 {
		maxTurns = 5
	}
	return &Manager{
		maxTurns: maxTurns,
		contexts: map[string]*Context{},
	}
}

// Start begins a debate in the channel, discarding any previous context.
func (m *Manager) Start(channelID, topic, personality string) Context {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &Context{
		ID:          uuid.NewString(),
		ChannelID:   channelID,
		Topic:       topic,
		Personality: personality,
		MaxTurns:    m.maxTurns,
	}
	m.contexts[channelID] = c
	return *c
}

// Get returns a snapshot of the channel's debate, if one is active.
func (m *Manager) Get(channelID string) (Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contexts[channelID]
	if !ok {
		return Context{}, false
	}
	return *c, true
}

// Active reports whether the channel has a running debate.
func (m *Manager) Active(channelID string) bool {
	_, ok := m.Get(channelID)
	return ok
}

// End removes the channel's debate context.
func (m *Manager) End(channelID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.contexts, channelID)
}

// IncrementTurn bumps the turn counter and returns the updated snapshot.
func (m *Manager) IncrementTurn(channelID string) (Context, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contexts[channelID]
	if !ok {
		return Context{}, false
	}
	c.TurnCount++
	return *c, true
}

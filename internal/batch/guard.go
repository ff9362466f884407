package batch

import (
	"sync"

	"school-identity-onboarding/internal/model"
)

// guard keeps the orchestrator's local view of the batches it touched:
// import state per identity batch, pending flags per batch family and the
// known provisioning batch per source.
type guard struct {
	mu            sync.Mutex
	states        map[string]model.ImportState
	establishment map[string]string
	pending       map[string]bool
	provisioning  map[string]string
	sources       map[string]string
}

func newGuard() *guard {
	return &guard{
		states:        make(map[string]model.ImportState),
		establishment: make(map[string]string),
		pending:       make(map[string]bool),
		provisioning:  make(map[string]string),
		sources:       make(map[string]string),
	}
}

// begin marks key as in flight. It returns false when it already was.
func (g *guard) begin(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pending[key] {
		return false
	}
	g.pending[key] = true
	return true
}

func (g *guard) end(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, key)
}

func (g *guard) inFlight(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pending[key]
}

func (g *guard) setState(batchID string, state model.ImportState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.states[batchID] = state
}

func (g *guard) state(batchID string) (model.ImportState, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	state, ok := g.states[batchID]
	return state, ok
}

func (g *guard) setEstablishment(batchID, establishmentID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.establishment[batchID] = establishmentID
}

func (g *guard) establishmentOf(batchID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.establishment[batchID]
}

func (g *guard) rememberProvisioning(sourceID, provisioningID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.provisioning[sourceID] = provisioningID
	g.sources[provisioningID] = sourceID
}

func (g *guard) provisioningFor(sourceID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.provisioning[sourceID]
	return id, ok
}

// family maps a provisioning batch back to its identity batch so that run
// and create+run share one pending flag.
func (g *guard) family(provisioningID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if source, ok := g.sources[provisioningID]; ok {
		return source
	}
	return provisioningID
}

package repositories

import "sync"

// tenantGate runs a setup step once per tenant. Setup for one tenant never
// waits on another, and a failed setup is retried by the next caller.
type tenantGate struct {
	mu      sync.Mutex
	tenants map[string]*tenantSetup
}

type tenantSetup struct {
	mu    sync.Mutex
	ready bool
}

func newTenantGate() *tenantGate {
	return &tenantGate{tenants: make(map[string]*tenantSetup)}
}

// Ensure runs setup unless it already succeeded for tenantID. It reports
// whether setup ran and succeeded on this call.
func (g *tenantGate) Ensure(tenantID string, setup func() error) (bool, error) {
	g.mu.Lock()
	entry, ok := g.tenants[tenantID]
	if !ok {
		entry = &tenantSetup{}
		g.tenants[tenantID] = entry
	}
	g.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.ready {
		return false, nil
	}
	if err := setup(); err != nil {
		return false, err
	}
	entry.ready = true
	return true, nil
}

package resilient

import (
	"sync"
)

// Status is the per-process state of one credential.
type Status string

const (
	// StatusActive credentials are eligible for selection.
	StatusActive Status = "active"
	// StatusDisabled credentials were rejected by the service and are never
	// selected again by the pool that disabled them.
	StatusDisabled Status = "disabled"
)

// CredentialPool owns the ordered credential list and the status of each
// credential. Status is process-local and starts active for every credential.
type CredentialPool struct {
	mu     sync.Mutex
	tokens []string
	status []Status
}

// NewCredentialPool creates a pool with every credential active, in the given
// order of preference.
func NewCredentialPool(tokens []string) *CredentialPool {
	p := &CredentialPool{
		tokens: append([]string(nil), tokens...),
		status: make([]Status, len(tokens)),
	}
	for i := range p.status {
		p.status[i] = StatusActive
	}
	return p
}

// Len returns the number of credentials, active or not.
func (p *CredentialPool) Len() int {
	return len(p.tokens)
}

// Token returns the secret of credential i.
func (p *CredentialPool) Token(i int) string {
	return p.tokens[i]
}

// Status returns the current status of credential i.
func (p *CredentialPool) Status(i int) Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status[i]
}

// Disable marks credential i as disabled for the lifetime of the pool.
func (p *CredentialPool) Disable(i int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status[i] = StatusDisabled
}

// Active returns the indexes of active credentials in preference order.
func (p *CredentialPool) Active() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []int
	for i, s := range p.status {
		if s == StatusActive {
			out = append(out, i)
		}
	}
	return out
}

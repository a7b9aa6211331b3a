package agent

// Registry holds every configured agent by id. It is built once at process
// start and passed to request handlers; lookups are read-only.
type Registry struct {
	agents map[string]*Agent
}

// NewRegistry creates a Registry from the given agents. Nil agents are
// skipped; a later agent with the same id wins.
func NewRegistry(agents ...*Agent) *Registry {
	m := make(map[string]*Agent, len(agents))
	for _, a := range agents {
		if a == nil {
			continue
		}
		m[a.ID] = a
	}
	return &Registry{agents: m}
}

// Get returns the agent for id, or nil if none is registered.
func (r *Registry) Get(id string) *Agent {
	if r == nil {
		return nil
	}
	return r.agents[id]
}

// IDs returns the registered agent ids.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.agents))
	for id := range r.agents {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.agents)
}

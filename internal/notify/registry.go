package notify

// Registry is a simple map-based sender collection. Registration happens at
// startup; reads after that are lock-free.
type Registry struct {
	senders map[string]Sender
	order   []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		senders: make(map[string]Sender),
	}
}

// Register adds a sender under its name, replacing any previous sender with
// the same name.
func (r *Registry) Register(s Sender) {
	if _, ok := r.senders[s.Name()]; !ok {
		r.order = append(r.order, s.Name())
	}
	r.senders[s.Name()] = s
}

// Get returns the sender with the given name, or false if not registered.
func (r *Registry) Get(name string) (Sender, bool) {
	s, ok := r.senders[name]
	return s, ok
}

// All returns the registered senders in registration order.
func (r *Registry) All() []Sender {
	out := make([]Sender, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.senders[name])
	}
	return out
}

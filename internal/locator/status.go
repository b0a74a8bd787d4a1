package locator

import "fmt"

// Status is a point-in-time view of a locator for the admin API.
type Status struct {
	UserID     int32             `json:"user_id"`
	Variant    string            `json:"variant"`
	Recovery   string            `json:"recovery"`
	Connection ConnectionState   `json:"connection"`
	Cached     map[string]string `json:"cached"`

	SessionListeners int `json:"session_listeners,omitempty"`
}

// Status reports the locator's state. Cached maps each layer of the
// variant to the descriptor of its cached handle, or "" when empty.
func (l *Locator) Status() Status {
	s := Status{
		UserID:     l.userID,
		Variant:    l.variant.String(),
		Recovery:   l.recovery.State().String(),
		Connection: l.Connection(),
		Cached:     make(map[string]string),

		SessionListeners: l.SessionListeners(),
	}
	for _, spec := range l.chain.specs {
		desc := ""
		if h := l.chain.cache.Load(spec.ID); h != nil {
			desc = h.Descriptor()
		}
		s.Cached[spec.ID.String()] = desc
	}
	return s
}

// ParseLayer returns the layer whose String is name.
func ParseLayer(name string) (LayerID, error) {
	for l := LayerBootstrap; l < layerCount; l++ {
		if l.String() == name {
			return l, nil
		}
	}
	return 0, fmt.Errorf("unknown layer %q", name)
}

package cascade

import (
	"errors"
	"fmt"
	"time"

	"github.com/Ariya-rithvik/cardiosim-ai/internal/ai"
)

// Descriptor places one provider in a cascade. PollInterval and MaxPolls
// override the controller's per-capability polling budget when set.
type Descriptor struct {
	Name         string
	Capability   ai.Capability
	Provider     ai.Provider
	Async        bool
	PollInterval time.Duration
	MaxPolls     int
}

// Registry holds the ordered provider lists. It is filled at start-up and
// must not be modified once handed to a Controller.
type Registry struct {
	byCapability map[ai.Capability][]Descriptor
	byDomain     map[ai.Domain][]Descriptor
}

func NewRegistry() *Registry {
	return &Registry{
		byCapability: make(map[ai.Capability][]Descriptor),
		byDomain:     make(map[ai.Domain][]Descriptor),
	}
}

func (d Descriptor) normalized() (Descriptor, error) {
	if d.Provider == nil {
		return d, errors.New("descriptor has no provider")
	}
	if d.Name == "" {
		d.Name = d.Provider.Name()
	}
	if d.Capability == "" {
		d.Capability = d.Provider.Capability()
	}
	if d.Capability != d.Provider.Capability() {
		return d, fmt.Errorf("descriptor %s: capability %s does not match provider capability %s", d.Name, d.Capability, d.Provider.Capability())
	}
	if _, ok := d.Provider.(ai.Poller); ok {
		d.Async = true
	} else if d.Async {
		return d, fmt.Errorf("descriptor %s: async provider does not implement polling", d.Name)
	}
	if d.PollInterval < 0 || d.MaxPolls < 0 {
		return d, fmt.Errorf("descriptor %s: negative polling budget", d.Name)
	}
	return d, nil
}

// Register appends providers to the default cascade of their capability, in
// priority order.
func (r *Registry) Register(descriptors ...Descriptor) error {
	for _, d := range descriptors {
		n, err := d.normalized()
		if err != nil {
			return err
		}
		r.byCapability[n.Capability] = append(r.byCapability[n.Capability], n)
	}
	return nil
}

// RegisterDomain sets a dedicated cascade for one domain. It replaces the
// capability default for requests in that domain only.
func (r *Registry) RegisterDomain(domain ai.Domain, descriptors ...Descriptor) error {
	list := make([]Descriptor, 0, len(descriptors))
	for _, d := range descriptors {
		n, err := d.normalized()
		if err != nil {
			return err
		}
		list = append(list, n)
	}
	r.byDomain[domain] = list
	return nil
}

// Lookup returns the cascade for a request. Domain lists only apply when
// their entries serve the requested capability.
func (r *Registry) Lookup(capability ai.Capability, domain ai.Domain) []Descriptor {
	if list, ok := r.byDomain[domain]; ok {
		out := make([]Descriptor, 0, len(list))
		for _, d := range list {
			if d.Capability == capability {
				out = append(out, d)
			}
		}
		return out
	}
	return append([]Descriptor(nil), r.byCapability[capability]...)
}

// Names lists every distinct provider name in the registry.
func (r *Registry) Names() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(list []Descriptor) {
		for _, d := range list {
			if _, ok := seen[d.Name]; ok {
				continue
			}
			seen[d.Name] = struct{}{}
			out = append(out, d.Name)
		}
	}
	for _, c := range []ai.Capability{ai.CapabilityText, ai.CapabilityImage, ai.CapabilityVideo} {
		add(r.byCapability[c])
	}
	for _, list := range r.byDomain {
		add(list)
	}
	return out
}

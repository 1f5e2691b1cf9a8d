package domain

import "sort"

// DomainKind says where a lookup found a domain.
type DomainKind int

const (
	// DomainAbsent means no domain is registered under the name.
	DomainAbsent DomainKind = iota
	// DomainPrimary is the node's primary domain.
	DomainPrimary
	// DomainSecondary is one of the secondary domains.
	DomainSecondary
)

func (k DomainKind) String() string {
	switch k {
	case DomainPrimary:
		return "primary"
	case DomainSecondary:
		return "secondary"
	default:
		return "absent"
	}
}

// DomainLookup is the result of a registry lookup. Domain is nil iff Kind is
// DomainAbsent.
type DomainLookup struct {
	Kind   DomainKind
	Domain *CertifiedDomain
}

// Found reports whether the lookup matched a registered domain.
func (l DomainLookup) Found() bool {
	return l.Kind != DomainAbsent && l.Domain != nil
}

// DomainRegistry holds one optional primary domain and any number of
// secondary domains keyed by name. It is not safe for concurrent use; the
// owning TrustData serializes access.
type DomainRegistry struct {
	primary     *CertifiedDomain
	secondaries map[string]*CertifiedDomain
}

// NewDomainRegistry returns an empty registry.
func NewDomainRegistry() *DomainRegistry {
	return &DomainRegistry{secondaries: make(map[string]*CertifiedDomain)}
}

// SetPrimary registers d as the primary domain, replacing any previous one.
// A secondary registered under the same name is promoted.
func (r *DomainRegistry) SetPrimary(d *CertifiedDomain) {
	delete(r.secondaries, d.Name)
	r.primary = d
}

// AddOrUpdate registers d. If d names the primary domain the primary record is
// updated, otherwise d is stored as a secondary domain. It reports whether a
// record with that name already existed.
func (r *DomainRegistry) AddOrUpdate(d *CertifiedDomain) (existed bool) {
	if r.primary != nil && r.primary.Name == d.Name {
		r.primary = d
		return true
	}
	_, existed = r.secondaries[d.Name]
	r.secondaries[d.Name] = d
	return existed
}

// Lookup finds name in the registry.
func (r *DomainRegistry) Lookup(name string) DomainLookup {
	if r.primary != nil && r.primary.Name == name {
		return DomainLookup{Kind: DomainPrimary, Domain: r.primary}
	}
	if d, ok := r.secondaries[name]; ok {
		return DomainLookup{Kind: DomainSecondary, Domain: d}
	}
	return DomainLookup{Kind: DomainAbsent}
}

// Primary returns the primary domain, or nil.
func (r *DomainRegistry) Primary() *CertifiedDomain {
	return r.primary
}

// Secondaries returns the secondary domains sorted by name.
func (r *DomainRegistry) Secondaries() []*CertifiedDomain {
	out := make([]*CertifiedDomain, 0, len(r.secondaries))
	for _, d := range r.secondaries {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered domains, primary included.
func (r *DomainRegistry) Len() int {
	n := len(r.secondaries)
	if r.primary != nil {
		n++
	}
	return n
}

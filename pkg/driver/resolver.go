package driver

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matzehuels/phpup/pkg/capability"
	"github.com/matzehuels/phpup/pkg/errors"
	"github.com/matzehuels/phpup/pkg/platform"
)

// Tag weights. A more specific match must always outweigh a less specific
// one: version > distro-version > distro > arch.
const (
	WeightVersion       = 25
	WeightDistroVersion = 15
	WeightDistro        = 10
	WeightArch          = 5
)

// Tag is one derived request tag and its weight.
type Tag struct {
	Value  string
	Weight int
}

// DeriveTags returns the request tags for cap on p, most specific first.
// Empty components are omitted.
func DeriveTags(c capability.Capability, p platform.Tags) []Tag {
	var tags []Tag
	add := func(v string, w int) {
		if v != "" && !slices.ContainsFunc(tags, func(t Tag) bool { return t.Value == v }) {
			tags = append(tags, Tag{Value: v, Weight: w})
		}
	}
	add(c.VersionTag(), WeightVersion)
	add(p.DistroWithVersion(), WeightDistroVersion)
	add(p.Distro, WeightDistro)
	add(p.Arch, WeightArch)
	return tags
}

// Candidate is one descriptor as seen by the resolver.
type Candidate struct {
	Descriptor string
	Score      int
	Matched    []string

	// Missing lists required tags the request did not derive.
	Missing []string

	// Supported is false when the driver rejected the requested version.
	Supported bool

	Selected bool
	Generic  bool
}

// Eligible reports whether the candidate could have been selected.
func (c Candidate) Eligible() bool { return len(c.Missing) == 0 && c.Supported }

// Resolver picks drivers from a Registry and memoizes the instances it
// builds. Instances are dropped when the registry is reset or a generic
// descriptor is replaced. It is safe for concurrent use.
type Resolver struct {
	reg *Registry

	mu      sync.Mutex
	gen     uint64
	drivers map[string]Driver
}

// NewResolver returns a resolver over reg.
func NewResolver(reg *Registry) *Resolver {
	return &Resolver{reg: reg, drivers: make(map[string]Driver)}
}

// Resolve returns the best driver for c on p.
func (r *Resolver) Resolve(c capability.Capability, p platform.Tags) (Driver, error) {
	d, _, err := r.resolve(c, p)
	return d, err
}

// Explain scores every descriptor for c on p without failing. The selected
// candidate, if any, has Selected set. The generic descriptor is listed last.
func (r *Resolver) Explain(c capability.Capability, p platform.Tags) []Candidate {
	_, cands, _ := r.resolve(c, p)
	return cands
}

// Reset drops every memoized driver instance.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.drivers)
}

func (r *Resolver) resolve(c capability.Capability, p platform.Tags) (Driver, []Candidate, error) {
	derived := DeriveTags(c, p)
	name := c.RegistryName()
	// Support is decided by the PHP version, which for extensions is the
	// runtime they are built against.
	version := c.PHPVersion()

	gen := r.reg.generation()
	descs := r.reg.Descriptors(c.Kind, name)
	cands := make([]Candidate, len(descs))
	best := -1
	var bestDriver Driver

	for i, desc := range descs {
		cand := score(desc, derived)
		if len(cand.Missing) == 0 {
			drv := r.instance(gen, fmt.Sprintf("%d|%s|%d|%s", c.Kind, name, i, desc.Name), desc)
			cand.Supported = drv != nil && drv.Supports(version)
			// Strictly greater keeps the first-registered descriptor on ties.
			if cand.Supported && (best < 0 || cand.Score > cands[best].Score) {
				best, bestDriver = i, drv
			}
		}
		cands[i] = cand
	}

	if best >= 0 {
		cands[best].Selected = true
		return bestDriver, cands, nil
	}

	if desc, ok := r.reg.Generic(c.Kind); ok {
		cand := score(desc, derived)
		cand.Generic = true
		drv := r.instance(gen, fmt.Sprintf("%d|generic|%s", c.Kind, desc.Name), desc)
		cand.Supported = drv != nil && drv.Supports(version)
		if len(cand.Missing) == 0 && cand.Supported {
			cand.Selected = true
			return drv, append(cands, cand), nil
		}
		cands = append(cands, cand)
	}

	return nil, cands, errors.New(errors.ErrCodeUnsupportedCapability,
		"no driver for %s on %s", c, p)
}

func (r *Resolver) instance(gen uint64, key string, desc Descriptor) Driver {
	r.mu.Lock()
	defer r.mu.Unlock()
	if desc.Factory == nil {
		return nil
	}
	switch {
	case gen > r.gen:
		clear(r.drivers)
		r.gen = gen
	case gen < r.gen:
		// Resolved against descriptors that have since been dropped.
		return desc.Factory()
	}
	if d, ok := r.drivers[key]; ok {
		return d
	}
	d := desc.Factory()
	r.drivers[key] = d
	return d
}

// score matches a descriptor's tags against the derived request tags. Both
// required and optional matches contribute to the score.
func score(desc Descriptor, derived []Tag) Candidate {
	cand := Candidate{Descriptor: desc.Name}
	weight := func(tag string) (int, bool) {
		for _, t := range derived {
			if t.Value == tag {
				return t.Weight, true
			}
		}
		return 0, false
	}
	for _, tag := range desc.RequiredTags {
		w, ok := weight(tag)
		if !ok {
			cand.Missing = append(cand.Missing, tag)
			continue
		}
		cand.Score += w
		cand.Matched = append(cand.Matched, tag)
	}
	for _, tag := range desc.OptionalTags {
		if slices.Contains(desc.RequiredTags, tag) {
			continue
		}
		if w, ok := weight(tag); ok {
			cand.Score += w
			cand.Matched = append(cand.Matched, tag)
		}
	}
	return cand
}

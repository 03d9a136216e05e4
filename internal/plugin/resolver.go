package plugin

import (
	"context"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/courseforge/courseforge/internal/errors"
)

// ResolveOptions control what the resolver is allowed to propose.
type ResolveOptions struct {
	// AllowInstall permits needs-install decisions. When false and an install
	// would be required, resolution fails before proposing any mutation.
	AllowInstall bool
	// AllowUpdate permits needs-update decisions for installed plugins that
	// sit below a required range.
	AllowUpdate bool
}

// Decision records the resolver's verdict for one plugin in the closure.
type Decision struct {
	Name             string
	InstalledVersion string // empty when not installed
	AvailableVersion string // empty when not in the source directory
	RequiredRanges   []string
	RequiredBy       []string
}

// Resolution partitions the transitive closure of the required plugins.
type Resolution struct {
	Satisfied []Decision
	Install   []Decision
	Update    []Decision
}

// Names returns the sorted names across all partitions.
func (r *Resolution) Names() []string {
	var names []string
	for _, part := range [][]Decision{r.Satisfied, r.Install, r.Update} {
		for _, d := range part {
			names = append(names, d.Name)
		}
	}
	sort.Strings(names)
	return names
}

// constraintSet accumulates the requirements discovered for one plugin.
type constraintSet struct {
	ranges     map[string]struct{}
	requiredBy map[string]struct{}
}

// Resolve computes install/update/skip decisions for the directly required
// plugin names. The closure is expanded with a worklist and memoized per
// name, then decided in sorted order, so identical registry state always
// yields an identical partition regardless of input order.
func Resolve(ctx context.Context, required []string, reg Registry, opts ResolveOptions) (*Resolution, error) {
	installed := map[string]*Descriptor{}
	available := map[string]*Descriptor{}

	// memoized lookups
	lookup := func(name string) (*Descriptor, *Descriptor, error) {
		inst, haveInst := installed[name]
		if !haveInst {
			found, err := reg.Find(ctx, Filter{Name: name})
			if err != nil {
				return nil, nil, err
			}
			if len(found) > 0 {
				inst = found[0]
			}
			installed[name] = inst
		}
		avail, haveAvail := available[name]
		if !haveAvail {
			var err error
			avail, err = reg.Available(ctx, name)
			if err != nil {
				return nil, nil, err
			}
			available[name] = avail
		}
		return inst, avail, nil
	}

	// Phase one: expand the closure and gather constraints until fixpoint.
	constraints := map[string]*constraintSet{}
	require := func(name, rng, by string) {
		cs := constraints[name]
		if cs == nil {
			cs = &constraintSet{ranges: map[string]struct{}{}, requiredBy: map[string]struct{}{}}
			constraints[name] = cs
		}
		if rng != "" && rng != "*" {
			cs.ranges[rng] = struct{}{}
		}
		if by != "" {
			cs.requiredBy[by] = struct{}{}
		}
	}

	worklist := append([]string{}, required...)
	sort.Strings(worklist)
	for _, name := range worklist {
		require(name, "", "")
	}
	visited := map[string]bool{}
	for len(worklist) > 0 {
		name := worklist[0]
		worklist = worklist[1:]
		if visited[name] {
			continue
		}
		visited[name] = true

		inst, avail, err := lookup(name)
		if err != nil {
			return nil, err
		}
		// Dependency edges come from whichever descriptor we would end up
		// using: the installed one if present, else the installable one.
		src := inst
		if src == nil {
			src = avail
		}
		if src == nil {
			continue // decided as missing in phase two
		}
		deps := make([]string, 0, len(src.Dependencies))
		for dep := range src.Dependencies {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		for _, dep := range deps {
			require(dep, src.Dependencies[dep], name)
			worklist = append(worklist, dep)
		}
	}

	// Phase two: decide every name in the closure deterministically.
	names := make([]string, 0, len(constraints))
	for name := range constraints {
		names = append(names, name)
	}
	sort.Strings(names)

	res := &Resolution{}
	for _, name := range names {
		cs := constraints[name]
		inst, avail := installed[name], available[name]
		dec := Decision{
			Name:           name,
			RequiredRanges: sortedKeys(cs.ranges),
			RequiredBy:     sortedKeys(cs.requiredBy),
		}
		if inst != nil {
			dec.InstalledVersion = inst.Version
		}
		if avail != nil {
			dec.AvailableVersion = avail.Version
		}

		switch {
		case inst != nil:
			ok, err := satisfiesAll(inst.Version, dec.RequiredRanges)
			if err != nil {
				return nil, err
			}
			if ok {
				res.Satisfied = append(res.Satisfied, dec)
				continue
			}
			if opts.AllowUpdate && avail != nil {
				availOK, err := satisfiesAll(avail.Version, dec.RequiredRanges)
				if err != nil {
					return nil, err
				}
				if availOK {
					res.Update = append(res.Update, dec)
					continue
				}
			}
			return nil, errors.IncompatibleDependency(name, inst.Version, strings.Join(dec.RequiredRanges, ", ")).
				WithContext("required_by", dec.RequiredBy)
		case avail != nil:
			ok, err := satisfiesAll(avail.Version, dec.RequiredRanges)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, errors.IncompatibleDependency(name, "", strings.Join(dec.RequiredRanges, ", ")).
					WithContext("available", avail.Version).
					WithContext("required_by", dec.RequiredBy)
			}
			res.Install = append(res.Install, dec)
		default:
			return nil, errors.MissingDependency(name, strings.Join(dec.RequiredBy, ", "))
		}
	}

	// Installs disabled: fail atomically before anything is mutated.
	if !opts.AllowInstall && len(res.Install) > 0 {
		missing := make([]string, len(res.Install))
		for i, d := range res.Install {
			missing[i] = d.Name
		}
		return nil, errors.New(errors.KindMissingDependency, "required plugins are not installed and installs are disabled").
			WithContext("plugins", missing)
	}
	return res, nil
}

func satisfiesAll(version string, ranges []string) (bool, error) {
	v, err := semver.NewVersion(version)
	if err != nil {
		return false, errors.Wrap(err, errors.KindIncompatibleDependency, "unparseable plugin version").
			WithContext("version", version)
	}
	for _, rng := range ranges {
		c, err := semver.NewConstraint(rng)
		if err != nil {
			return false, errors.Wrap(err, errors.KindIncompatibleDependency, "unparseable version range").
				WithContext("range", rng)
		}
		if !c.Check(v) {
			return false, nil
		}
	}
	return true, nil
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

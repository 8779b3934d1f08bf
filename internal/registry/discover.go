package registry

// RegisterFunc is a self-registration hook a node package exposes (by
// convention, an init-time var or a package-level function) so Discover
// can wire it into a Registry without reflection. This replaces the
// source's reflective scanning of a node package tree: each concrete
// node kind supplies its own RegisterFunc, and main() lists which ones
// to load.
type RegisterFunc func(*Registry)

// Discover builds a Registry from a list of RegisterFuncs — one per
// concrete node kind (or per node package, if it registers a family of
// kinds) — and reports any identifier collisions across all of them.
func Discover(regs ...RegisterFunc) (*Registry, error) {
	r := New()
	for _, reg := range regs {
		reg(r)
	}
	if err := r.DetectDuplicates(); err != nil {
		return nil, err
	}
	return r, nil
}

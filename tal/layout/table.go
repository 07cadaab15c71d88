package layout

// maxOverlayDepth bounds lookup chains; deeper overlays are flattened.
const maxOverlayDepth = 8

type entry[V any] struct {
	v    V
	gone bool
}

// overlay is a persistent map. Each version stores only what changed on top of its parent, so a
// snapshot shares everything it did not touch with the one before it.
type overlay[K comparable, V any] struct {
	parent *overlay[K, V]
	delta  map[K]entry[V]
	size   int
	depth  int
}

func newOverlay[K comparable, V any](m map[K]V) *overlay[K, V] {
	o := &overlay[K, V]{delta: make(map[K]entry[V], len(m)), size: len(m)}
	for k, v := range m {
		o.delta[k] = entry[V]{v: v}
	}
	return o
}

func (o *overlay[K, V]) get(k K) (v V, ok bool) {
	for c := o; c != nil; c = c.parent {
		if e, found := c.delta[k]; found {
			if e.gone {
				return v, false
			}
			return e.v, true
		}
	}
	return v, false
}

func (o *overlay[K, V]) len() int {
	if o == nil {
		return 0
	}
	return o.size
}

// with returns a new version with set applied and del removed. o itself is left as is.
func (o *overlay[K, V]) with(set map[K]V, del []K) *overlay[K, V] {
	if len(set) == 0 && len(del) == 0 {
		return o
	}
	n := &overlay[K, V]{
		parent: o,
		delta:  make(map[K]entry[V], len(set)+len(del)),
		size:   o.len(),
	}
	if o != nil {
		n.depth = o.depth + 1
	}
	for _, k := range del {
		if _, ok := o.get(k); ok {
			n.size--
		}
		n.delta[k] = entry[V]{gone: true}
	}
	for k, v := range set {
		if prev, ok := n.delta[k]; ok && prev.gone {
			// deleted and set in the same step
			n.size++
		} else if _, ok := o.get(k); !ok {
			n.size++
		}
		n.delta[k] = entry[V]{v: v}
	}
	if n.depth > maxOverlayDepth {
		return newOverlay(n.flat())
	}
	return n
}

// flat materialises every live key.
func (o *overlay[K, V]) flat() map[K]V {
	var chain []*overlay[K, V]
	for c := o; c != nil; c = c.parent {
		chain = append(chain, c)
	}
	m := make(map[K]V, o.len())
	for i := len(chain) - 1; i >= 0; i-- {
		for k, e := range chain[i].delta {
			if e.gone {
				delete(m, k)
			} else {
				m[k] = e.v
			}
		}
	}
	return m
}

package metadata

// Opt is an optional metadata field. The zero value is absent, which is
// distinct from a present zero.
type Opt[T any] struct {
	v  T
	ok bool
}

// Some returns a present Opt holding v.
func Some[T any](v T) Opt[T] { return Opt[T]{v: v, ok: true} }

func (o Opt[T]) Get() (T, bool) { return o.v, o.ok }
func (o Opt[T]) Has() bool      { return o.ok }

// Or returns the value if present and def otherwise.
func (o Opt[T]) Or(def T) T {
	if o.ok {
		return o.v
	}
	return def
}

func (o *Opt[T]) Set(v T) { o.v, o.ok = v, true }

func (o *Opt[T]) Clear() { *o = Opt[T]{} }

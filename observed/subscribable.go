package observed

// Subscribable makes a user type observable without a wrapper. Embed it by
// value and call NotifyPropertyHasChanged after each change:
//
//	type Counter struct {
//		observed.Subscribable
//		n int
//	}
//
//	func (c *Counter) Inc() {
//		c.n++
//		c.NotifyPropertyHasChanged("n", c.n)
//	}
//
// *Counter then satisfies Observable and can be held by object properties.
// Such types are not in the identity table; each value is its own observable.
type Subscribable struct {
	handler
}

// Raw returns the embedded Subscribable. Embedding types that want RawObject
// to return themselves define their own Raw.
func (s *Subscribable) Raw() any { return s }

// NotifyPropertyHasChanged tells every owner that property name now holds
// value. Owners no longer registered are logged and skipped.
func (s *Subscribable) NotifyPropertyHasChanged(name string, value any) {
	if s.kind == "" {
		s.kind = "subscribable"
	}
	s.notifyChanged("set", name, value)
}

package registry

import (
	"github.com/delaneyj/statesync/console"
	"github.com/delaneyj/statesync/metrics"
)

// Change describes one change notification.
type Change struct {
	// Value is passed to HasChanged.
	Value any
	// Name is passed to PropertyHasChanged.
	Name string
	// Peer, when set, is passed to PeerHasChanged.
	Peer Subscriber
}

// NotifyChange delivers c to every id in ids, in order. Each subscriber gets
// every callback it implements: HasChanged, then PropertyHasChanged, then
// PeerHasChanged. IDs missing from the registry are logged and skipped; the
// fan-out always completes. It returns the number of missing ids.
func (r *Registry) NotifyChange(source string, ids []ID, c Change) int {
	m := metrics.Default()
	missing := 0
	for _, id := range ids {
		sub, ok := r.Find(id)
		if !ok {
			missing++
			m.Dangling.Inc()
			console.Warn("notify: unknown subscriber", "source", source, "subscriber", id)
			continue
		}
		if s, ok := sub.(ValueChangeSubscriber); ok {
			m.Notifications.WithLabelValues("value").Inc()
			s.HasChanged(c.Value)
		}
		if s, ok := sub.(PropertyChangeSubscriber); ok {
			m.Notifications.WithLabelValues("property").Inc()
			s.PropertyHasChanged(c.Name)
		}
		if c.Peer != nil {
			if s, ok := sub.(PeerChangeSubscriber); ok {
				m.Notifications.WithLabelValues("peer").Inc()
				s.PeerHasChanged(c.Peer)
			}
		}
	}
	return missing
}

// NotifyRead tells every live id in ids that name was read. Missing ids are
// skipped silently; a stale read is not worth a warning.
func (r *Registry) NotifyRead(ids []ID, name string) {
	m := metrics.Default()
	for _, id := range ids {
		sub, ok := r.Find(id)
		if !ok {
			continue
		}
		if s, ok := sub.(PropertyReadSubscriber); ok {
			m.Notifications.WithLabelValues("read").Inc()
			s.PropertyRead(name)
		}
	}
}

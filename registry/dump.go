package registry

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Labeled is implemented by subscribers that carry a diagnostic label.
type Labeled interface {
	Info() string
}

// Dump writes a table of live subscribers, sorted by ID, with the
// notification capabilities each one implements.
func (r *Registry) Dump(w io.Writer) {
	r.mu.RLock()
	ids := make([]ID, 0, len(r.subs))
	for id := range r.subs {
		ids = append(ids, id)
	}
	subs := make(map[ID]Subscriber, len(r.subs))
	for id, s := range r.subs {
		subs[id] = s
	}
	r.mu.RUnlock()
	slices.Sort(ids)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"id", "type", "info", "capabilities"})
	for _, id := range ids {
		sub := subs[id]
		info := ""
		if l, ok := sub.(Labeled); ok {
			info = l.Info()
		}
		table.Append([]string{
			strconv.FormatUint(uint64(id), 10),
			fmt.Sprintf("%T", sub),
			info,
			capabilities(sub),
		})
	}
	table.SetFooter([]string{"", "", "total", strconv.Itoa(len(ids))})
	table.Render()
}

func Dump(w io.Writer) { defaultRegistry.Dump(w) }

func capabilities(sub Subscriber) string {
	var caps []string
	if _, ok := sub.(ValueChangeSubscriber); ok {
		caps = append(caps, "value")
	}
	if _, ok := sub.(PropertyChangeSubscriber); ok {
		caps = append(caps, "property")
	}
	if _, ok := sub.(PropertyReadSubscriber); ok {
		caps = append(caps, "read")
	}
	if _, ok := sub.(PeerChangeSubscriber); ok {
		caps = append(caps, "peer")
	}
	if len(caps) == 0 {
		return "-"
	}
	return strings.Join(caps, ",")
}

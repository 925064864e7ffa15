package snapshot

import (
	"sort"

	"horizonx-meter/internal/meter"
)

// Updates holds the latest Update of each meter kind. Register it as an
// observer on every meter it should follow.
type Updates struct {
	*Store[meter.Kind, meter.Update]
}

func NewUpdates() *Updates {
	return &Updates{Store: NewStore[meter.Kind, meter.Update]()}
}

func (u *Updates) Update(up meter.Update) {
	u.Set(up.Kind, up)
}

// List returns the stored updates ordered by kind.
func (u *Updates) List() []meter.Update {
	all := u.All()
	out := make([]meter.Update, 0, len(all))
	for _, up := range all {
		out = append(out, up)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

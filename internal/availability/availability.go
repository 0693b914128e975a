package availability

import (
	"time"

	"github.com/tanvir-rahman/doctorsportal/internal/model"
)

// OptionView is a catalog option with only the slots still bookable on the
// requested date. Options with nothing left keep an empty slot list so the
// caller can decide whether to hide them.
type OptionView struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	PriceCents int64    `json:"price_cents"`
	Slots      []string `json:"slots"`
}

// Compute returns one view per catalog option with the slots already booked
// on date removed, preserving each option's original slot order.
//
// Pure function of its inputs: no side effects, and the result does not
// depend on the iteration order of booked beyond the catalog's own ordering.
// Bookings for another date or an unknown treatment are ignored.
func Compute(date time.Time, catalog []model.AppointmentOption, booked []model.Booking) []OptionView {
	day := date.UTC().Truncate(24 * time.Hour)

	taken := make(map[string]map[string]struct{}, len(catalog))
	for _, b := range booked {
		if !b.AppointmentDate.UTC().Truncate(24 * time.Hour).Equal(day) {
			continue
		}
		slots := taken[b.Treatment]
		if slots == nil {
			slots = make(map[string]struct{})
			taken[b.Treatment] = slots
		}
		slots[b.Slot] = struct{}{}
	}

	views := make([]OptionView, 0, len(catalog))
	for _, opt := range catalog {
		views = append(views, OptionView{
			ID:         opt.ID,
			Name:       opt.Name,
			PriceCents: opt.PriceCents,
			Slots:      remaining(opt.Slots, taken[opt.Name]),
		})
	}
	return views
}

// RemainingSlots returns the slots of opt still open on date given that
// date's bookings.
func RemainingSlots(date time.Time, opt model.AppointmentOption, booked []model.Booking) []string {
	views := Compute(date, []model.AppointmentOption{opt}, booked)
	return views[0].Slots
}

func remaining(all []string, taken map[string]struct{}) []string {
	out := make([]string, 0, len(all))
	for _, s := range all {
		if _, ok := taken[s]; ok {
			continue
		}
		out = append(out, s)
	}
	return out
}

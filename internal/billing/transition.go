package billing

import (
	"time"

	"brokerly/internal/types"
)

// Transition is the computed target state for one event. When Apply is false
// the event deliberately changes nothing (unknown kinds, orders, a renewal
// confirmation without a renewal date). When KeepEndsAt is true the stored
// end date is carried over instead of being recomputed; status still updates.
type Transition struct {
	Apply      bool
	Status     types.SubscriptionStatus
	EndsAt     *time.Time
	KeepEndsAt bool
}

// Next is the whole state machine in one reviewable table: event in, target
// (status, end date) out. It is pure; now and the configured windows are
// passed in so tests can pin time.
//
// Every branch recomputes full target state from the event's own attributes,
// never a delta against stored state. That is what makes replays safe.
func Next(ev *WebhookEvent, now time.Time, gracePeriod, renewalFallback time.Duration) Transition {
	now = now.UTC()

	switch ev.Kind {
	case EventSubscriptionCreated, EventSubscriptionResumed, EventSubscriptionUnpaused:
		return Transition{
			Apply:  true,
			Status: types.SubStatusActive,
			EndsAt: orFallback(ev.RenewsAt, now.Add(renewalFallback)),
		}

	case EventSubscriptionUpdated:
		t := Transition{Apply: true, Status: statusFromProvider(ev.Status)}
		switch {
		case ev.RenewsAt != nil:
			t.EndsAt = ev.RenewsAt
		case ev.EndsAt != nil:
			t.EndsAt = ev.EndsAt
		default:
			t.KeepEndsAt = true
		}
		return t

	case EventSubscriptionCancelled:
		// End date is cleared on cancellation, regardless of prior state.
		return Transition{Apply: true, Status: types.SubStatusCancelled}

	case EventSubscriptionExpired:
		return Transition{
			Apply:  true,
			Status: types.SubStatusExpired,
			EndsAt: orFallback(ev.EndsAt, now),
		}

	case EventSubscriptionPaused:
		return Transition{Apply: true, Status: types.SubStatusPaused, KeepEndsAt: true}

	case EventPaymentSuccess:
		// The renewal-confirmation path: the end date must advance to the
		// provider's renews_at. Without one there is nothing safe to write.
		if ev.RenewsAt == nil {
			return Transition{}
		}
		return Transition{Apply: true, Status: types.SubStatusActive, EndsAt: ev.RenewsAt}

	case EventPaymentFailed:
		graceEnd := now.Add(gracePeriod)
		return Transition{Apply: true, Status: types.SubStatusPastDue, EndsAt: &graceEnd}

	case EventOrderCreated, EventUnknown:
		return Transition{}

	default:
		return Transition{}
	}
}

// statusFromProvider maps the provider's status string onto the persisted
// set. Anything unrecognized (or absent) is treated as active, matching the
// provider's own default for a live subscription.
func statusFromProvider(status string) types.SubscriptionStatus {
	switch status {
	case "cancelled", "canceled":
		return types.SubStatusCancelled
	case "expired":
		return types.SubStatusExpired
	case "past_due", "unpaid":
		return types.SubStatusPastDue
	case "paused":
		return types.SubStatusPaused
	case "on_trial":
		return types.SubStatusTrial
	default:
		return types.SubStatusActive
	}
}

func orFallback(t *time.Time, fallback time.Time) *time.Time {
	if t != nil {
		return t
	}
	return &fallback
}

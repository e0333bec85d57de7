package slots

import "travel-assistant/internal/models"

// DateWaiver lists the reasons a packing question may go ahead without dates.
type DateWaiver struct {
	ShortTimeframe bool
	Immediate      bool
	Special        bool
}

func (w DateWaiver) Any() bool {
	return w.ShortTimeframe || w.Immediate || w.Special
}

func needsCity(intent models.Intent) bool {
	switch intent {
	case models.IntentWeather, models.IntentPacking, models.IntentDestinations,
		models.IntentAttractions, models.IntentFlights:
		return true
	}
	return false
}

func needsDates(intent models.Intent, waiver DateWaiver) bool {
	switch intent {
	case models.IntentDestinations:
		return true
	case models.IntentPacking:
		return !waiver.Any()
	}
	return false
}

// Required lists the slots intent needs before its handler can run.
func Required(intent models.Intent, waiver DateWaiver) []string {
	var out []string
	if needsCity(intent) {
		out = append(out, City)
	}
	if needsDates(intent, waiver) {
		out = append(out, Dates)
	}
	return out
}

// Missing returns the required slots absent from slots, in Required order.
func Missing(intent models.Intent, slots map[string]string, waiver DateWaiver) []string {
	var out []string
	for _, k := range Required(intent, waiver) {
		switch k {
		case City:
			if PrimaryCity(slots) == "" {
				out = append(out, City)
			}
		case Dates:
			if !HasDateWindow(slots) {
				out = append(out, Dates)
			}
		}
	}
	return out
}

// DatesWaived reports whether the waiver is the only reason dates are not
// being asked for.
func DatesWaived(intent models.Intent, waiver DateWaiver) bool {
	return intent == models.IntentPacking && waiver.Any()
}

package slots

import (
	"sort"
	"strings"
)

const (
	City            = "city"
	DestinationCity = "destinationCity"
	OriginCity      = "originCity"
	Country         = "country"

	Dates     = "dates"
	Month     = "month"
	StartDate = "startDate"
	EndDate   = "endDate"
	Duration  = "duration"
	Season    = "season"

	TravelerProfile = "travelerProfile"
	Travelers       = "travelers"
	Children        = "children"
	Budget          = "budget"
)

var (
	LocationSlots   = []string{City, DestinationCity, OriginCity, Country}
	TimeWindowSlots = []string{Dates, Month, StartDate, EndDate, Duration, Season}
	ProfileSlots    = []string{TravelerProfile, Travelers, Children, Budget}
)

// IsLocationSlot reports whether key names a place.
func IsLocationSlot(key string) bool {
	for _, k := range LocationSlots {
		if k == key {
			return true
		}
	}
	return false
}

// Clean trims values and drops empty ones. Location slots additionally lose
// placeholder values. The second return lists dropped keys.
func Clean(patch map[string]string) (map[string]string, []string) {
	out := make(map[string]string, len(patch))
	var dropped []string
	for k, v := range patch {
		v = strings.TrimSpace(v)
		if v == "" {
			dropped = append(dropped, k)
			continue
		}
		if IsLocationSlot(k) && IsPlaceholder(v) {
			dropped = append(dropped, k)
			continue
		}
		out[k] = v
	}
	sort.Strings(dropped)
	return out, dropped
}

// MergeResult is the merged slot map and what the merge changed.
type MergeResult struct {
	Slots           map[string]string
	Dropped         []string
	Cleared         []string
	LocationChanged bool
}

// Merge applies patch on top of prior and returns a new map; prior is not
// modified. When the primary location changes to a different place, the
// time-window and traveler-profile slots from prior are cleared, keeping any
// the patch itself provides.
func Merge(prior, patch map[string]string) MergeResult {
	clean, dropped := Clean(patch)

	merged := make(map[string]string, len(prior)+len(clean))
	for k, v := range prior {
		merged[k] = v
	}

	res := MergeResult{Dropped: dropped}

	if key, newLoc, ok := primaryLocation(clean); ok {
		if oldLoc := prior[key]; oldLoc != "" && !Equal(oldLoc, newLoc) {
			res.LocationChanged = true
			for _, group := range [][]string{TimeWindowSlots, ProfileSlots} {
				for _, k := range group {
					if _, had := merged[k]; had {
						if _, patched := clean[k]; !patched {
							delete(merged, k)
							res.Cleared = append(res.Cleared, k)
						}
					}
				}
			}
		}
	}

	for k, v := range clean {
		merged[k] = v
	}

	res.Slots = merged
	return res
}

func primaryLocation(slots map[string]string) (string, string, bool) {
	for _, k := range []string{City, DestinationCity} {
		if v, ok := slots[k]; ok {
			return k, v, true
		}
	}
	return "", "", false
}

// PrimaryCity returns the city a handler should act on.
func PrimaryCity(slots map[string]string) string {
	if v := slots[City]; v != "" {
		return v
	}
	return slots[DestinationCity]
}

// HasDateWindow reports whether any slot pins down when the trip happens.
func HasDateWindow(slots map[string]string) bool {
	for _, k := range []string{Dates, Month, StartDate, Season} {
		if slots[k] != "" {
			return true
		}
	}
	return false
}

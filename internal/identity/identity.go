// Package identity stores each participant's verified gender and stated
// partner preference, keyed by the opaque device identifier. Participants are
// created implicitly on first write and never deleted.
package identity

// Gender is a participant's verified gender as returned by the classifier.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// ParseGender normalises a classifier result. Anything that is not
// male/female collapses to unknown (the classifier's fail-safe outcome).
func ParseGender(s string) Gender {
	switch Gender(s) {
	case GenderMale, GenderFemale:
		return Gender(s)
	default:
		return GenderUnknown
	}
}

// Known reports whether the gender is a real verified value.
func (g Gender) Known() bool {
	return g == GenderMale || g == GenderFemale
}

// Preference is the gender a participant wants to be paired with.
type Preference string

const (
	PrefMale   Preference = "male"
	PrefFemale Preference = "female"
	PrefAny    Preference = "any"
)

// ParsePreference validates a client-supplied preference value. The second
// return is false for values outside male/female/any.
func ParsePreference(s string) (Preference, bool) {
	switch Preference(s) {
	case PrefMale, PrefFemale, PrefAny:
		return Preference(s), true
	case "":
		return PrefAny, true
	default:
		return PrefAny, false
	}
}

// Specific reports whether the preference targets a single gender and is
// therefore subject to the daily filter cap.
func (p Preference) Specific() bool {
	return p == PrefMale || p == PrefFemale
}

// Admits reports whether a participant of gender g satisfies this stored
// preference.
func (p Preference) Admits(g Gender) bool {
	return p == PrefAny || Gender(p) == g
}

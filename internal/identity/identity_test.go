package identity

import "testing"

func TestParseGender(t *testing.T) {
	cases := []struct {
		in   string
		want Gender
	}{
		{"male", GenderMale},
		{"female", GenderFemale},
		{"unknown", GenderUnknown},
		{"", GenderUnknown},
		{"robot", GenderUnknown},
		{"Male", GenderUnknown},
	}
	for _, c := range cases {
		if got := ParseGender(c.in); got != c.want {
			t.Errorf("ParseGender(%q): expected %q, got %q", c.in, c.want, got)
		}
	}
}

func TestGenderKnown(t *testing.T) {
	if !GenderMale.Known() || !GenderFemale.Known() {
		t.Error("male and female should be known")
	}
	if GenderUnknown.Known() {
		t.Error("unknown must not be known")
	}
}

func TestParsePreference(t *testing.T) {
	cases := []struct {
		in     string
		want   Preference
		wantOK bool
	}{
		{"male", PrefMale, true},
		{"female", PrefFemale, true},
		{"any", PrefAny, true},
		{"", PrefAny, true},
		{"both", PrefAny, false},
		{"MALE", PrefAny, false},
	}
	for _, c := range cases {
		got, ok := ParsePreference(c.in)
		if got != c.want || ok != c.wantOK {
			t.Errorf("ParsePreference(%q): expected (%q, %v), got (%q, %v)", c.in, c.want, c.wantOK, got, ok)
		}
	}
}

func TestPreferenceSpecific(t *testing.T) {
	if !PrefMale.Specific() || !PrefFemale.Specific() {
		t.Error("male and female preferences are specific")
	}
	if PrefAny.Specific() {
		t.Error("any must not be specific")
	}
}

func TestPreferenceAdmits(t *testing.T) {
	cases := []struct {
		pref Preference
		g    Gender
		want bool
	}{
		{PrefAny, GenderMale, true},
		{PrefAny, GenderFemale, true},
		{PrefMale, GenderMale, true},
		{PrefMale, GenderFemale, false},
		{PrefFemale, GenderFemale, true},
		{PrefFemale, GenderMale, false},
	}
	for _, c := range cases {
		if got := c.pref.Admits(c.g); got != c.want {
			t.Errorf("%s.Admits(%s): expected %v, got %v", c.pref, c.g, c.want, got)
		}
	}
}

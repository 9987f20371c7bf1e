package latch

import "testing"

func TestModeCompatibilityMatrix(t *testing.T) {
	t.Parallel()
	cases := []struct {
		a, b Mode
		want bool
	}{
		{ModeNone, ModeNone, true},
		{ModeNone, ModeShared, true},
		{ModeNone, ModeUpgradable, true},
		{ModeNone, ModeExclusive, true},
		{ModeShared, ModeShared, true},
		{ModeShared, ModeUpgradable, true},
		{ModeShared, ModeExclusive, false},
		{ModeUpgradable, ModeUpgradable, false},
		{ModeUpgradable, ModeExclusive, false},
		{ModeExclusive, ModeExclusive, false},
	}
	for _, tc := range cases {
		if got := Compatible(tc.a, tc.b); got != tc.want {
			t.Errorf("Compatible(%s, %s) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
		if got := Compatible(tc.b, tc.a); got != tc.want {
			t.Errorf("Compatible(%s, %s) = %v, want %v", tc.b, tc.a, got, tc.want)
		}
	}
}

func TestModeCovers(t *testing.T) {
	t.Parallel()
	modes := []Mode{ModeNone, ModeShared, ModeUpgradable, ModeExclusive}
	for i, a := range modes {
		for j, b := range modes {
			want := i >= j
			if got := Covers(a, b); got != want {
				t.Errorf("Covers(%s, %s) = %v, want %v", a, b, got, want)
			}
		}
	}
}

func TestModeString(t *testing.T) {
	t.Parallel()
	cases := map[Mode]string{
		ModeNone:       "none",
		ModeShared:     "shared",
		ModeUpgradable: "upgradable",
		ModeExclusive:  "exclusive",
		Mode(42):       "unknown",
	}
	for mode, want := range cases {
		if got := mode.String(); got != want {
			t.Errorf("Mode(%d).String() = %q, want %q", int(mode), got, want)
		}
	}
}

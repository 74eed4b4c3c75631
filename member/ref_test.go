package member

import (
	"reflect"
	"testing"
)

func TestNormalizeCode(t *testing.T) {
	cases := map[string]string{
		"att":       "ATT",
		"  Oncor  ": "ONCOR",
		"ATMOS":     "ATMOS",
		"  ":        "",
		"":          "",
	}
	for in, want := range cases {
		if got := NormalizeCode(in); got != want {
			t.Errorf("NormalizeCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDedupe(t *testing.T) {
	refs := Dedupe([]Ref{
		{Code: "att", DisplayName: "AT&T"},
		{Code: "ONCOR"},
		{Code: " Att ", DisplayName: "duplicate, dropped"},
		{Code: ""},
		{Code: "atmos"},
	})

	if got := Codes(refs); !reflect.DeepEqual(got, []string{"ATT", "ONCOR", "ATMOS"}) {
		t.Fatalf("deduped codes = %v", got)
	}
	if refs[0].DisplayName != "AT&T" {
		t.Errorf("first occurrence should win, got %q", refs[0].DisplayName)
	}
}

func TestContainsCode(t *testing.T) {
	refs := []Ref{{Code: "ATT"}, {Code: "ONCOR"}}

	if !ContainsCode(refs, " att ") {
		t.Error("expected normalized lookup to find ATT")
	}
	if ContainsCode(refs, "KINDER") {
		t.Error("unexpected hit for unknown code")
	}
}

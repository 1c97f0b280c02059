package cmd

import "testing"

func TestParseIntListEmptyStringIsNoOp(t *testing.T) {
	got, err := parseIntList("")
	if err != nil {
		t.Fatalf("parseIntList(\"\"): %v", err)
	}
	if got != nil {
		t.Errorf("parseIntList(\"\") = %v, want nil", got)
	}
}

func TestParseIntListTrimsWhitespace(t *testing.T) {
	got, err := parseIntList("16, 32 ,64")
	if err != nil {
		t.Fatalf("parseIntList: %v", err)
	}
	want := []int{16, 32, 64}
	if len(got) != len(want) {
		t.Fatalf("parseIntList = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("parseIntList[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestParseIntListRejectsNonIntegers(t *testing.T) {
	if _, err := parseIntList("16,abc"); err == nil {
		t.Fatal("expected an error parsing a non-integer entry")
	}
}

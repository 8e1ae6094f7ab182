package sheetstore

import "testing"

func TestRangeRefA1(t *testing.T) {
	t.Parallel()

	cases := []struct {
		ref  RangeRef
		want string
	}{
		{Ref("id", "MAIN", "A:ZZ"), "MAIN!A:ZZ"},
		{Ref("id", "TO_DO_MASTER", "1:1"), "TO_DO_MASTER!1:1"},
		{Ref("id", "Form Responses 1", "A:C"), "'Form Responses 1'!A:C"},
		{Ref("id", "Owner's Tab", "B2"), "'Owner''s Tab'!B2"},
		{Ref("id", "", "A:ZZ"), "A:ZZ"},
		{Ref("id", "VAR", ""), "VAR"},
	}
	for _, tc := range cases {
		if got := tc.ref.A1(); got != tc.want {
			t.Fatalf("A1(%+v)=%q, want %q", tc.ref, got, tc.want)
		}
	}
}

func TestRangeRefStart(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":      "A1",
		"A:ZZ":  "A1",
		"1:1":   "A1",
		"B3:D9": "B3",
		"C:C":   "C1",
		"B2":    "B2",
	}
	for span, want := range cases {
		got, err := Ref("id", "T", span).Start()
		if err != nil {
			t.Fatalf("Start(%q) error: %v", span, err)
		}
		if got != want {
			t.Fatalf("Start(%q)=%q, want %q", span, got, want)
		}
	}
}

func TestParseSpanRejectsGarbage(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"A:B:C", ":", "A0", "!!"} {
		if _, err := parseSpan(raw); err == nil {
			t.Fatalf("parseSpan(%q) should fail", raw)
		}
	}
}

func TestColumnLetterRoundTrip(t *testing.T) {
	t.Parallel()

	if got := ColumnLetter(0); got != "A" {
		t.Fatalf("ColumnLetter(0)=%q", got)
	}
	if got := ColumnLetter(26); got != "AA" {
		t.Fatalf("ColumnLetter(26)=%q", got)
	}
	idx, err := ColumnIndex("zz")
	if err != nil || idx != 701 {
		t.Fatalf("ColumnIndex(zz)=%d err=%v", idx, err)
	}
}

func TestTrim(t *testing.T) {
	t.Parallel()

	got := Trim(Matrix{{"a", "", ""}, {}, {"b"}, {"", ""}, {}})
	if len(got) != 3 {
		t.Fatalf("rows=%d, want 3: %v", len(got), got)
	}
	if len(got[0]) != 1 || len(got[1]) != 0 || got[2][0] != "b" {
		t.Fatalf("unexpected trim result: %v", got)
	}
}

func TestTrimKeepsWhitespaceCells(t *testing.T) {
	t.Parallel()

	got := Trim(Matrix{{"a", " "}, {"", "\t"}})
	if len(got) != 2 {
		t.Fatalf("rows=%d, want 2: %v", len(got), got)
	}
	if len(got[0]) != 2 || got[0][1] != " " || len(got[1]) != 2 || got[1][1] != "\t" {
		t.Fatalf("whitespace cells must survive: %q", got)
	}
}

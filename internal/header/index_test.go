package header

import "testing"

func TestNormalizeKey(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"To Do Status":        "TO_DO_STATUS",
		"  gross\nrcpts  ":    "GROSS_RCPTS",
		"Created Date/Time":   "CREATED_DATE/TIME",
		"loan\r\n\t  balance": "LOAN_BALANCE",
		"   ":                 "",
		"":                    "",
	}
	for in, want := range cases {
		if got := NormalizeKey(in); got != want {
			t.Fatalf("NormalizeKey(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestBuildNonBreakingSpaceHeaders(t *testing.T) {
	t.Parallel()

	idx := Build([]string{"GROSS\u00a0RCPTS", "TO\u00a0DO\u00a0STATUS", "\u00a0City\u2007"})
	if col, ok := idx.Lookup("GROSS_RCPTS"); !ok || col != 0 {
		t.Fatalf("GROSS_RCPTS col=%d ok=%v", col, ok)
	}
	if col, ok := idx.Lookup("TO_DO_STATUS"); !ok || col != 1 {
		t.Fatalf("TO_DO_STATUS col=%d ok=%v", col, ok)
	}
	if col, ok := idx.Lookup("CITY"); !ok || col != 2 {
		t.Fatalf("CITY col=%d ok=%v", col, ok)
	}
	if got := idx.Columns()[1].Name; got != "TO DO STATUS" {
		t.Fatalf("label=%q, want %q", got, "TO DO STATUS")
	}
	if missing := idx.Missing([]string{"GROSS_RCPTS"}, []string{"CITY"}); len(missing) != 0 {
		t.Fatalf("missing=%v", missing)
	}
}

func TestBuildSkipsEmptyAndLastWins(t *testing.T) {
	t.Parallel()

	idx := Build([]string{"REID", "", "Status", "  ", "status"})
	if idx.Len() != 2 {
		t.Fatalf("Len=%d, want 2", idx.Len())
	}
	col, ok := idx.Lookup("STATUS")
	if !ok || col != 4 {
		t.Fatalf("STATUS col=%d ok=%v, want 4", col, ok)
	}
	if len(idx.Columns()) != 3 {
		t.Fatalf("Columns=%v", idx.Columns())
	}
}

func TestLookupFallbackAliases(t *testing.T) {
	t.Parallel()

	idx := Build([]string{"TODO ID", "Status", "Who"})

	col, ok := idx.Lookup("TO_DO_STATUS", "STATUS")
	if !ok || col != 1 {
		t.Fatalf("fallback to STATUS failed: col=%d ok=%v", col, ok)
	}
	if _, ok := idx.Lookup("ASSIGNED_TO"); ok {
		t.Fatalf("ASSIGNED_TO should be absent")
	}

	row := []string{"TD-1", "OPEN"}
	if got := idx.Value(row, "ASSIGNED_TO", "WHO"); got != "" {
		t.Fatalf("short row should yield empty value, got %q", got)
	}
	if got := idx.Value(row, "TO_DO_ID", "TODO_ID"); got != "TD-1" {
		t.Fatalf("Value=%q", got)
	}
}

func TestMissing(t *testing.T) {
	t.Parallel()

	idx := Build([]string{"GROSS RCPTS", "City"})
	missing := idx.Missing(
		[]string{"GROSS_RCPTS"},
		[]string{"RENT", "MONTHLY_RENT"},
		[]string{"CITY"},
	)
	if len(missing) != 1 || missing[0] != "RENT" {
		t.Fatalf("missing=%v", missing)
	}
}

func TestNilIndexIsSafe(t *testing.T) {
	t.Parallel()

	var idx *Index
	if _, ok := idx.Lookup("REID"); ok {
		t.Fatalf("nil index should not resolve")
	}
	if idx.Len() != 0 {
		t.Fatalf("nil index Len should be 0")
	}
}

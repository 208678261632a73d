package meterz

import (
	"testing"
)

func TestFormatRecord(t *testing.T) {
	enter := FormatRecord(Enter, "transfer", 199850)
	if enter[0] != "transfer {" {
		t.Errorf("Expected 'transfer {', got %q", enter[0])
	}
	if enter[1] != "Program consumption: 199850 units remaining" {
		t.Errorf("Expected counter line, got %q", enter[1])
	}

	exit := FormatRecord(Exit, "transfer", 195112)
	if exit[0] != "Program consumption: 195112 units remaining" {
		t.Errorf("Expected counter line, got %q", exit[0])
	}
	if exit[1] != "transfer }" {
		t.Errorf("Expected 'transfer }', got %q", exit[1])
	}
}

func TestParseCounter(t *testing.T) {
	tests := []struct {
		line string
		want uint64
		ok   bool
	}{
		{"Program consumption: 1000 units remaining", 1000, true},
		{"Program consumption: 0 units remaining", 0, true},
		{"Program consumption: 18446744073709551615 units remaining", ^uint64(0), true},
		{"Program consumption: -1 units remaining", 0, false},
		{"Program consumption: 12 units", 0, false},
		{"consumption: 12 units remaining", 0, false},
		{"Program consumption:  units remaining", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseCounter(tt.line)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseCounter(%q) = %d, %v; expected %d, %v", tt.line, got, ok, tt.want, tt.ok)
		}
	}
}

func TestDecodeSkipsUnrelatedLines(t *testing.T) {
	lines := []string{
		"Program 11111111111111111111111111111111 invoke [1]",
		"Program log: Instruction: Transfer",
		"transfer {",
		"Program consumption: 1000 units remaining",
		"Program log: moving 5 tokens",
		"Program consumption: 900 units remaining",
		"transfer }",
		"Program 11111111111111111111111111111111 success",
	}

	records, skipped := Decode(lines)

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if skipped != 4 {
		t.Errorf("Expected 4 skipped lines, got %d", skipped)
	}

	if records[0].Kind != Enter || records[0].Label != "transfer" || records[0].Counter != 1000 {
		t.Errorf("Unexpected enter record %+v", records[0])
	}
	if records[0].Line != 3 || records[0].Sequence != 0 {
		t.Errorf("Expected enter at line 3 sequence 0, got line %d sequence %d", records[0].Line, records[0].Sequence)
	}
	if records[1].Kind != Exit || records[1].Counter != 900 || records[1].Sequence != 1 {
		t.Errorf("Unexpected exit record %+v", records[1])
	}
}

func TestDecodeAcceptsHostLogPrefix(t *testing.T) {
	lines := []string{
		"Program log: swap {",
		"Program consumption: 5000 units remaining",
		"Program consumption: 4200 units remaining",
		"Program log: swap }",
	}

	records, skipped := Decode(lines)
	if skipped != 0 {
		t.Errorf("Expected 0 skipped lines, got %d", skipped)
	}
	if len(records) != 2 || records[0].Label != "swap" || records[1].Label != "swap" {
		t.Errorf("Expected swap enter/exit, got %+v", records)
	}
}

func TestDecodeBracketWithoutCounterIsUnrelated(t *testing.T) {
	lines := []string{
		"config {",
		"  key = value",
		"}",
		"Program consumption: 10 units remaining",
	}

	records, skipped := Decode(lines)
	if len(records) != 0 {
		t.Errorf("Expected no records, got %+v", records)
	}
	if skipped != len(lines) {
		t.Errorf("Expected %d skipped lines, got %d", len(lines), skipped)
	}
}

func TestKindString(t *testing.T) {
	if Enter.String() != "enter" || Exit.String() != "exit" || Kind(0).String() != "unknown" {
		t.Error("Unexpected Kind names")
	}
}

func TestDecodeOpenShapedLineBeforeExit(t *testing.T) {
	lines := []string{
		"outer {",
		"Program consumption: 100 units remaining",
		"Program log: config {",
		"Program consumption: 90 units remaining",
		"outer }",
	}

	records, skipped := Decode(lines)
	if skipped != 1 {
		t.Errorf("Expected 1 skipped line, got %d", skipped)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %+v", records)
	}
	if records[1].Kind != Exit || records[1].Label != "outer" || records[1].Counter != 90 {
		t.Errorf("Expected outer exit at 90, got %+v", records[1])
	}
	if records[1].Line != 4 {
		t.Errorf("Expected exit at line 4, got %d", records[1].Line)
	}
}

func TestDecodeCloseShapedLineAfterEnter(t *testing.T) {
	lines := []string{
		"outer {",
		"Program consumption: 100 units remaining",
		"inner {",
		"Program consumption: 90 units remaining",
		"Program log: done }",
		"Program consumption: 80 units remaining",
		"inner }",
		"Program consumption: 70 units remaining",
		"outer }",
	}

	records, skipped := Decode(lines)
	if skipped != 1 {
		t.Errorf("Expected 1 skipped line, got %d", skipped)
	}
	want := []struct {
		kind  Kind
		label Label
	}{
		{Enter, "outer"}, {Enter, "inner"}, {Exit, "inner"}, {Exit, "outer"},
	}
	if len(records) != len(want) {
		t.Fatalf("Expected %d records, got %+v", len(want), records)
	}
	for i, w := range want {
		if records[i].Kind != w.kind || records[i].Label != w.label {
			t.Errorf("Record %d: expected %s %q, got %s %q", i, w.kind, w.label, records[i].Kind, records[i].Label)
		}
	}
}

func TestDecodeOpenShapedLineAtTopLevelIsAnEnter(t *testing.T) {
	// With nothing open, an Exit reading is impossible.
	lines := []string{
		"setup {",
		"Program consumption: 100 units remaining",
		"Program consumption: 90 units remaining",
		"setup }",
	}

	records, skipped := Decode(lines)
	if skipped != 0 || len(records) != 2 || records[0].Kind != Enter {
		t.Errorf("Expected setup enter and exit, got %+v (%d skipped)", records, skipped)
	}
}

package meterz

import (
	"strconv"
	"strings"
)

// Line protocol shared by the emitter and the reconstructor.
const (
	counterPrefix = "Program consumption: "
	counterSuffix = " units remaining"
	logPrefix     = "Program log: "
	openSuffix    = " {"
	closeSuffix   = " }"
)

// maxCounterLineLen is the longest counter line the emitter can produce.
var maxCounterLineLen = len(counterPrefix) + len(strconv.FormatUint(^uint64(0), 10)) + len(counterSuffix)

// Kind distinguishes the two bracket records of a span.
type Kind uint8

const (
	// Enter marks the start of a measured region.
	Enter Kind = iota + 1
	// Exit marks the end of a measured region.
	Exit
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Enter:
		return "enter"
	case Exit:
		return "exit"
	default:
		return "unknown"
	}
}

// Record is one bracket record: a label and a counter snapshot.
// Sequence is the emission order within one execution; Line is the 1-based
// position of the record's first line in the channel, zero when the record
// did not come from decoding.
type Record struct {
	Label    Label  `json:"label"`
	Counter  uint64 `json:"counter"`
	Sequence int    `json:"sequence"`
	Line     int    `json:"line,omitempty"`
	Kind     Kind   `json:"kind"`
}

// FormatRecord renders a record as the two lines the emitter writes for it.
func FormatRecord(kind Kind, label Label, counter uint64) [2]string {
	if kind == Enter {
		return [2]string{label + openSuffix, counterLine(counter)}
	}
	return [2]string{counterLine(counter), label + closeSuffix}
}

func counterLine(n uint64) string {
	buf := make([]byte, 0, maxCounterLineLen)
	buf = append(buf, counterPrefix...)
	buf = strconv.AppendUint(buf, n, 10)
	buf = append(buf, counterSuffix...)
	return string(buf)
}

func parseCounter(line string) (uint64, bool) {
	rest, ok := strings.CutPrefix(line, counterPrefix)
	if !ok {
		return 0, false
	}
	digits, ok := strings.CutSuffix(rest, counterSuffix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func parseBracket(line, suffix string) (Label, bool) {
	line = strings.TrimPrefix(line, logPrefix)
	label, ok := strings.CutSuffix(line, suffix)
	if !ok || label == "" {
		return "", false
	}
	return label, true
}

// Decode extracts bracket records from the lines of one execution.
//
// An Enter is a "label {" line immediately followed by a counter line. An
// Exit is a counter line immediately followed by a "label }" line. Every
// other line is unrelated output; skipped counts them.
//
// A counter line with a "label {" line before it and a "label }" line after
// it could belong to either. Decode tracks the open labels and reads it as
// the Exit when the closing label is the innermost open one, so a bracket
// shaped log line written just before a guard exits stays unrelated.
func Decode(lines []string) (records []Record, skipped int) {
	var open []Label
	for i := 0; i < len(lines); {
		if label, n, ok := enterAt(lines, i); ok && !closesInnermost(lines, i+1, open) {
			records = append(records, Record{
				Kind:     Enter,
				Label:    label,
				Counter:  n,
				Sequence: len(records),
				Line:     i + 1,
			})
			open = append(open, label)
			i += 2
			continue
		}
		if label, n, ok := exitAt(lines, i); ok {
			records = append(records, Record{
				Kind:     Exit,
				Label:    label,
				Counter:  n,
				Sequence: len(records),
				Line:     i + 1,
			})
			if len(open) > 0 && open[len(open)-1] == label {
				open = open[:len(open)-1]
			}
			i += 2
			continue
		}
		skipped++
		i++
	}
	return records, skipped
}

func enterAt(lines []string, i int) (Label, uint64, bool) {
	if i+1 >= len(lines) {
		return "", 0, false
	}
	label, ok := parseBracket(lines[i], openSuffix)
	if !ok {
		return "", 0, false
	}
	n, ok := parseCounter(lines[i+1])
	return label, n, ok
}

func exitAt(lines []string, i int) (Label, uint64, bool) {
	if i+1 >= len(lines) {
		return "", 0, false
	}
	n, ok := parseCounter(lines[i])
	if !ok {
		return "", 0, false
	}
	label, ok := parseBracket(lines[i+1], closeSuffix)
	return label, n, ok
}

func closesInnermost(lines []string, i int, open []Label) bool {
	if len(open) == 0 {
		return false
	}
	label, _, ok := exitAt(lines, i)
	return ok && label == open[len(open)-1]
}

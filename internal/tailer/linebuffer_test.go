package tailer

import (
	"strings"
	"testing"
)

func collectLines(b *LineBuffer, chunks ...string) []string {
	var lines []string
	for _, chunk := range chunks {
		b.Feed([]byte(chunk), func(line []byte) {
			lines = append(lines, string(line))
		})
	}
	return lines
}

func TestLineBufferCompleteLines(t *testing.T) {
	b := NewLineBuffer()
	lines := collectLines(b, "alpha\nbeta\n")

	want := []string{"alpha", "beta"}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestLineBufferCarriesPartialLine(t *testing.T) {
	b := NewLineBuffer()

	lines := collectLines(b, "partial")
	if len(lines) != 0 {
		t.Fatalf("incomplete line emitted early: %v", lines)
	}
	if b.Pending() != len("partial") {
		t.Errorf("Pending() = %d, want %d", b.Pending(), len("partial"))
	}

	lines = collectLines(b, " line\nnext")
	if len(lines) != 1 || lines[0] != "partial line" {
		t.Fatalf("got %v, want [partial line]", lines)
	}
}

func TestLineBufferFiltersBlankLines(t *testing.T) {
	b := NewLineBuffer()
	lines := collectLines(b, "one\n\n   \n\t\ntwo\n")

	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Fatalf("got %v, want [one two]", lines)
	}
}

// Chunk boundaries must not affect the emitted line sequence: every way
// of splitting the same byte stream yields identical lines.
func TestLineBufferSplitInvariance(t *testing.T) {
	stream := "first line\nsecond\n\nthird one here\nx\n"

	baseline := collectLines(NewLineBuffer(), stream)
	if len(baseline) != 4 {
		t.Fatalf("baseline has %d lines, want 4: %v", len(baseline), baseline)
	}

	for split1 := 0; split1 <= len(stream); split1++ {
		for split2 := split1; split2 <= len(stream); split2++ {
			b := NewLineBuffer()
			lines := collectLines(b, stream[:split1], stream[split1:split2], stream[split2:])

			if len(lines) != len(baseline) {
				t.Fatalf("splits (%d,%d): got %d lines, want %d", split1, split2, len(lines), len(baseline))
			}
			for i := range baseline {
				if lines[i] != baseline[i] {
					t.Fatalf("splits (%d,%d): line %d = %q, want %q", split1, split2, i, lines[i], baseline[i])
				}
			}
		}
	}
}

func TestLineBufferReset(t *testing.T) {
	b := NewLineBuffer()
	collectLines(b, "dangling tail with no newline")
	b.Reset()

	if b.Pending() != 0 {
		t.Errorf("Pending() = %d after Reset, want 0", b.Pending())
	}

	lines := collectLines(b, "fresh\n")
	if len(lines) != 1 || lines[0] != "fresh" {
		t.Fatalf("got %v, want [fresh]", lines)
	}
}

func TestLineBufferLongLine(t *testing.T) {
	b := NewLineBuffer()
	long := strings.Repeat("x", 1<<20)

	lines := collectLines(b, long[:1<<19], long[1<<19:]+"\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0] != long {
		t.Errorf("long line corrupted: got %d bytes, want %d", len(lines[0]), len(long))
	}
}

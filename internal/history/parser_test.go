package history

import (
	"errors"
	"testing"
	"time"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantErr     bool
		wantSession string
		wantProject string
		wantPrompt  string
		wantTime    time.Time
	}{
		{
			name:        "ISO timestamp with session",
			line:        `{"timestamp":"2024-01-01T00:00:00.000Z","project":"/home/u/app","sessionId":"s1","prompt":"hi"}`,
			wantSession: "s1",
			wantProject: "/home/u/app",
			wantPrompt:  "hi",
			wantTime:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:        "display field preferred over prompt",
			line:        `{"timestamp":"2024-01-01T00:00:00Z","project":"/x","display":"shown","prompt":"hidden"}`,
			wantProject: "/x",
			wantPrompt:  "shown",
			wantTime:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:        "epoch milliseconds",
			line:        `{"timestamp":1704067200000,"project":"/x","display":"epoch"}`,
			wantProject: "/x",
			wantPrompt:  "epoch",
			wantTime:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:        "epoch milliseconds as string",
			line:        `{"timestamp":"1704067200000","project":"/x","display":"epoch-str"}`,
			wantProject: "/x",
			wantPrompt:  "epoch-str",
			wantTime:    time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:    "unparsable timestamp",
			line:    `{"timestamp":"not-a-date","project":"/x"}`,
			wantErr: true,
		},
		{
			name:    "missing timestamp",
			line:    `{"project":"/x","display":"hi"}`,
			wantErr: true,
		},
		{
			name:    "empty project",
			line:    `{"timestamp":"2024-01-01T00:00:00Z","project":"  ","display":"hi"}`,
			wantErr: true,
		},
		{
			name:    "invalid JSON",
			line:    `{"timestamp":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseLine([]byte(tt.line))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseLine(%q) succeeded, want error", tt.line)
				}
				var parseErr *ParseError
				if !errors.As(err, &parseErr) {
					t.Errorf("error type = %T, want *ParseError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseLine(%q) error = %v", tt.line, err)
			}
			if rec.SessionID != tt.wantSession {
				t.Errorf("SessionID = %q, want %q", rec.SessionID, tt.wantSession)
			}
			if rec.Project != tt.wantProject {
				t.Errorf("Project = %q, want %q", rec.Project, tt.wantProject)
			}
			if rec.Prompt != tt.wantPrompt {
				t.Errorf("Prompt = %q, want %q", rec.Prompt, tt.wantPrompt)
			}
			if !rec.Timestamp.Equal(tt.wantTime) {
				t.Errorf("Timestamp = %v, want %v", rec.Timestamp, tt.wantTime)
			}
		})
	}
}

// A corrupt line must not poison the parse of subsequent valid lines.
func TestParseLineRecoversAfterError(t *testing.T) {
	if _, err := ParseLine([]byte(`{"timestamp":"not-a-date","project":"/x"}`)); err == nil {
		t.Fatal("expected error for invalid timestamp")
	}

	rec, err := ParseLine([]byte(`{"timestamp":"2024-01-01T00:00:00.000Z","project":"/home/u/app","sessionId":"s1","prompt":"hi"}`))
	if err != nil {
		t.Fatalf("valid line after bad one failed: %v", err)
	}
	if rec.SessionID != "s1" {
		t.Errorf("SessionID = %q, want s1", rec.SessionID)
	}
}

func TestParseLinePastedContents(t *testing.T) {
	line := `{"timestamp":"2024-01-01T00:00:00Z","project":"/x","display":"hi","pastedContents":{"1":{"type":"text","content":"pasted"}}}`
	rec, err := ParseLine([]byte(line))
	if err != nil {
		t.Fatalf("ParseLine error = %v", err)
	}
	if len(rec.PastedContents) != 1 {
		t.Fatalf("PastedContents has %d entries, want 1", len(rec.PastedContents))
	}
	if _, ok := rec.PastedContents["1"]; !ok {
		t.Error("PastedContents missing key \"1\"")
	}
}

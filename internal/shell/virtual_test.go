// SPDX-License-Identifier: MPL-2.0

package shell

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRun_ExitStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"success", "true", 0},
		{"explicit exit", "exit 3", 3},
		{"test builtin false", "[ 1 -eq 2 ]", 1},
		{"missing command", "definitely-not-a-command-xyz", 127},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Run(t.Context(), Script{Body: tt.body})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Run() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRun_EnvDirAndOutput(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var out bytes.Buffer

	code, err := Run(t.Context(), Script{
		Body:   `echo "$GREETING"; pwd`,
		Dir:    dir,
		Env:    []string{"GREETING=hello"},
		Stdout: &out,
	})
	if err != nil || code != 0 {
		t.Fatalf("Run() = %d, %v", code, err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 || lines[0] != "hello" || lines[1] != dir {
		t.Errorf("output = %q", out.String())
	}
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()
	if _, err := Run(t.Context(), Script{Body: "if then fi"}); err == nil {
		t.Fatal("Run() expected parse error")
	}
	if err := Parse("check", "echo ok"); err != nil {
		t.Errorf("Parse() error = %v", err)
	}
}

func TestRun_Cancelled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := Run(ctx, Script{Body: "while true; do :; done"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want DeadlineExceeded", err)
	}
}

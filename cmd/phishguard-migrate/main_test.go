package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_RejectsBadArguments(t *testing.T) {
	t.Parallel()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{
			name:    "Should reject an unknown command",
			args:    []string{"-database", "postgres://u:p@localhost:1/db", "sideways"},
			wantErr: "unknown command",
		},
		{
			name:    "Should require a version for force",
			args:    []string{"-database", "postgres://u:p@localhost:1/db", "force"},
			wantErr: "requires a version",
		},
		{
			name:    "Should reject a non-numeric force version",
			args:    []string{"-database", "postgres://u:p@localhost:1/db", "force", "latest"},
			wantErr: "invalid version number",
		},
		{
			name:    "Should reject unknown flags",
			args:    []string{"-verbose"},
			wantErr: "flag provided but not defined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := run(log, tt.args)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

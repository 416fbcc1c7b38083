package mail

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"alice@example.com", "a****@example.com"},
		{"ab@example.com", "a*@example.com"},
		{"a@example.com", "****"},
		{"not-an-address", "****"},
		{"", "****"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MaskEmail(tt.in), "MaskEmail(%q)", tt.in)
	}
}

func TestLogMailerNeverLogsCode(t *testing.T) {
	var buf bytes.Buffer
	m := &LogMailer{Logger: slog.New(slog.NewTextHandler(&buf, nil))}

	err := m.SendCode(context.Background(), "alice@example.com", "123456", uuid.New())
	require.NoError(t, err)

	out := buf.String()
	assert.NotContains(t, out, "123456", "code must never appear in logs")
	assert.NotContains(t, out, "alice@example.com", "raw address must never appear in logs")
	assert.Contains(t, out, "a****@example.com")
}

package toaster

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	m := New()

	assert.False(t, m.Visible())
	assert.Empty(t, m.View())
}

func TestShow(t *testing.T) {
	m, cmd := New().Show("Hello", StyleSuccess, time.Millisecond)

	require.NotNil(t, cmd)
	assert.True(t, m.Visible())
	assert.Equal(t, "Hello", m.Message())
	assert.Contains(t, m.View(), "Hello")
	assert.Contains(t, m.View(), "✅")
}

func TestDismiss_HidesMatchingToast(t *testing.T) {
	m, cmd := New().Show("Hello", StyleInfo, time.Millisecond)

	msg := cmd()
	m = m.Update(msg)
	assert.False(t, m.Visible())
	assert.Empty(t, m.View())
}

func TestDismiss_StaleDoesNotHideNewerToast(t *testing.T) {
	m, first := New().Show("First", StyleSuccess, time.Millisecond)
	m, _ = m.Show("Second", StyleError, time.Millisecond)

	m = m.Update(first())
	assert.True(t, m.Visible())
	assert.Contains(t, m.View(), "Second")
	assert.NotContains(t, m.View(), "First")
}

func TestView_Styles(t *testing.T) {
	tests := []struct {
		style Style
		emoji string
	}{
		{StyleSuccess, "✅"},
		{StyleError, "❌"},
		{StyleInfo, "ℹ️"},
		{StyleWarn, "⚠️"},
	}
	for _, tt := range tests {
		m, _ := New().Show("msg", tt.style, time.Second)
		assert.Contains(t, m.View(), tt.emoji)
	}
}

func TestOverlay(t *testing.T) {
	bg := strings.Repeat(strings.Repeat(".", 40)+"\n", 9) + strings.Repeat(".", 40)
	m := New().SetSize(40, 10)

	assert.Equal(t, bg, m.Overlay(bg), "hidden toast leaves background alone")

	m, _ = m.Show("Saved", StyleSuccess, time.Second)
	out := m.Overlay(bg)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 10)
	assert.Contains(t, lines[7], "Saved")
	assert.Equal(t, strings.Repeat(".", 40), lines[9])
}

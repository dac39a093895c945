package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormattersKeepMessage(t *testing.T) {
	formatters := map[string]func(string) string{
		"Success": Success,
		"Warn":    Warn,
		"Err":     Err,
		"Info":    Info,
		"Hint":    Hint,
		"Addr":    Addr,
		"Val":     Val,
		"Meta":    Meta,
		"Symbol":  Symbol,
	}
	for name, fn := range formatters {
		t.Run(name, func(t *testing.T) {
			assert.Contains(t, fn("test"), "test")
		})
	}
}

func TestFormatterPrefixes(t *testing.T) {
	assert.Contains(t, Success("done"), "✓")
	assert.Contains(t, Warn("careful"), "⚠")
	assert.Contains(t, Err("failed"), "✗")
	assert.NotEqual(t, Info("m"), Hint("m"))
}

func TestTruncateAddr(t *testing.T) {
	assert.Equal(t, "", TruncateAddr(""))
	assert.Equal(t, "0x12345678", TruncateAddr("0x12345678"))
	assert.Equal(t, "0x1234…5678", TruncateAddr("0x1234567890abcdef1234567890abcdef12345678"))
}

func TestPadR(t *testing.T) {
	assert.Equal(t, "hi   ", padR("hi", 5))
	assert.Equal(t, "hello", padR("hello", 5))
	assert.Equal(t, "toolong", padR("toolong", 3))
}

func TestBanner(t *testing.T) {
	assert.Contains(t, Banner(), "ERC-20")
}

func TestConfirmFrom(t *testing.T) {
	var out bytes.Buffer
	assert.True(t, ConfirmFrom(strings.NewReader("y\n"), &out, "send?"))
	assert.True(t, ConfirmFrom(strings.NewReader(" YES \n"), &out, "send?"))
	assert.False(t, ConfirmFrom(strings.NewReader("\n"), &out, "send?"))
	assert.False(t, ConfirmFrom(strings.NewReader(""), &out, "send?"))
	assert.Contains(t, out.String(), "[y/N]")
}

func TestSpinnerClearsLine(t *testing.T) {
	var out syncBuffer
	s := NewSpinnerTo(&out, "deploying")
	s.Start()
	s.StopWithMsg("deployed")
	got := out.String()
	assert.Contains(t, got, "deploying")
	assert.True(t, strings.HasSuffix(got, "deployed\n"))
}

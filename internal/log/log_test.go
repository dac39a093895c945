package log

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestFormatterLine(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "debug")
	l.WithFields(logrus.Fields{"to": "0x02", "amount": 5}).Info("transfer applied")

	line := buf.String()
	assert.Contains(t, line, "INFO    Transfer applied ")
	assert.Contains(t, line, "amount=5, to=0x02")
	assert.NotContains(t, line, "\x1b[", "no colour when not a terminal")
}

func TestNewLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "warn")
	l.Info("hidden")
	assert.Empty(t, buf.String())

	l = New(&buf, "bogus")
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())
}

func TestDiscard(t *testing.T) {
	var _ Logger = Discard()
	Discard().Error("nothing happens")
}

func TestFirstUpper(t *testing.T) {
	assert.Equal(t, "", firstUpper(""))
	assert.Equal(t, "Abc", firstUpper("abc"))
}

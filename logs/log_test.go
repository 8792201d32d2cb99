package logs

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(LevelWarning)
	defer func() {
		logger = newLogger(os.Stdout, os.Stderr)
		SetLevel(LevelInfo)
	}()

	Info("hidden %d", 1)
	Warn("shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden 1")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "[WARN]")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarning, ParseLevel("warn"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestSetNodeTagTruncates(t *testing.T) {
	SetNodeTag("A83TaXZhoY8V7sV71juincig8YXYcYngitWoP9TFXJyE")
	defer SetNodeTag("-------")
	assert.Equal(t, "A83TaXZ", nodeTag.Load().(string))
}

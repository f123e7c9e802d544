package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSplitOutput(t *testing.T) {
	var stdout, stderr bytes.Buffer
	log := NewWithCores(zapcore.InfoLevel, zapcore.AddSync(&stdout), zapcore.AddSync(&stderr))

	log.Debugf("hidden")
	log.Infof("pair_auc (avg over batches): %.4f", 0.5)
	log.Errorf("Embedding matrix loading error")
	require.NoError(t, log.Sync())

	assert.Contains(t, stdout.String(), "pair_auc (avg over batches): 0.5000")
	assert.NotContains(t, stdout.String(), "hidden")
	assert.NotContains(t, stdout.String(), "Embedding matrix")
	assert.Contains(t, stderr.String(), "Embedding matrix loading error")
}

func TestBadLevel(t *testing.T) {
	_, err := New("loud")
	assert.Error(t, err)
}

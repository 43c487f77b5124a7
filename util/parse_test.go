package util_test

import (
	"testing"

	"github.com/kamikyo/MappedFileQueues/util"
	"github.com/stretchr/testify/assert"
)

func TestParseInt(t *testing.T) {
	assert.Equal(t, 42, util.ParseInt("42", 0))
	assert.Equal(t, 7, util.ParseInt("not a number", 7))
	assert.Equal(t, -3, util.ParseInt("-3", 0))
}

func TestParseBool(t *testing.T) {
	assert.True(t, util.ParseBool("true", false))
	assert.False(t, util.ParseBool("false", true))
	assert.True(t, util.ParseBool("garbage", true))
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want util.LogLevel
	}{
		{"debug", util.LogLevelDebug},
		{"INFO", util.LogLevelInfo},
		{"warning", util.LogLevelWarn},
		{"error", util.LogLevelError},
		{"unknown", util.LogLevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, util.ParseLogLevel(tt.in), tt.in)
	}
}

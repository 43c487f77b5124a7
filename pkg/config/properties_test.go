package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kamikyo/MappedFileQueues/pkg/config"
	"github.com/kamikyo/MappedFileQueues/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := config.DefaultConfig()

	assert.Equal(t, time.Second, cfg.ConsumerRetryInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.ConsumerSpinWaitDuration)
	assert.Equal(t, 1000, cfg.ProducerForceFlushIntervalCount)
	assert.Equal(t, 0, cfg.UnmatchedCheckCount)
	assert.True(t, cfg.EnableAutoCleanup)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, 2, cfg.MinRetentionSegments)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.Config
		wantErr bool
	}{
		{
			name:    "valid",
			cfg:     config.Config{StorePath: "/tmp/q", PayloadSize: 7, SegmentSize: 64},
			wantErr: false,
		},
		{
			name:    "empty store path",
			cfg:     config.Config{PayloadSize: 7, SegmentSize: 64},
			wantErr: true,
		},
		{
			name:    "blank store path",
			cfg:     config.Config{StorePath: "   ", PayloadSize: 7, SegmentSize: 64},
			wantErr: true,
		},
		{
			name:    "zero payload size",
			cfg:     config.Config{StorePath: "/tmp/q", SegmentSize: 64},
			wantErr: true,
		},
		{
			name:    "non-positive segment size",
			cfg:     config.Config{StorePath: "/tmp/q", PayloadSize: 7, SegmentSize: -1},
			wantErr: true,
		},
		{
			name:    "segment smaller than one record",
			cfg:     config.Config{StorePath: "/tmp/q", PayloadSize: 7, SegmentSize: 7},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_DerivedSizes(t *testing.T) {
	cfg := config.Config{PayloadSize: 7, SegmentSize: 64}
	assert.Equal(t, int64(8), cfg.Stride())
	assert.Equal(t, int64(64), cfg.AdjustedSegmentSize())

	// Nominal size is rounded down to a whole number of records.
	cfg = config.Config{PayloadSize: 7, SegmentSize: 70}
	assert.Equal(t, int64(64), cfg.AdjustedSegmentSize())

	cfg = config.Config{PayloadSize: 2, SegmentSize: 64}
	assert.Equal(t, int64(3), cfg.Stride())
	assert.Equal(t, int64(63), cfg.AdjustedSegmentSize())
}

func TestConfig_Paths(t *testing.T) {
	cfg := config.Config{StorePath: "/var/lib/q"}
	assert.Equal(t, filepath.Join("/var/lib/q", "commitlog"), cfg.CommitLogDir())
	assert.Equal(t, filepath.Join("/var/lib/q", "offset", "producer.offset"), cfg.ProducerOffsetPath())
	assert.Equal(t, filepath.Join("/var/lib/q", "offset", "consumer.offset"), cfg.ConsumerOffsetPath())
	assert.Equal(t, filepath.Join("/var/lib/q", "offset", "producer.confirmed"), cfg.ProducerConfirmedPath())
}

func TestLoadConfigFile_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.yaml")
	content := `
store_path: ` + dir + `
payload_size: 7
segment_size: 64
producer_force_flush_interval_count: 5
min_retention_segments: 3
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := config.LoadConfigFile(path)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.StorePath)
	assert.Equal(t, 7, cfg.PayloadSize)
	assert.Equal(t, int64(64), cfg.SegmentSize)
	assert.Equal(t, 5, cfg.ProducerForceFlushIntervalCount)
	assert.Equal(t, 3, cfg.MinRetentionSegments)
	assert.Equal(t, util.LogLevelDebug, cfg.LogLevel)
	// untouched fields keep their defaults
	assert.Equal(t, time.Second, cfg.ConsumerRetryInterval)
}

func TestLoadConfigFile_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "queue.yaml")
	require.NoError(t, os.WriteFile(path, []byte("payload_size: 7\nsegment_size: 64\n"), 0644))

	_, err := config.LoadConfigFile(path)
	assert.Error(t, err)
}

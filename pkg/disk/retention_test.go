package disk_test

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kamikyo/MappedFileQueues/pkg/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOffsetFile(t *testing.T, path string, value int64) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(value))
	require.NoError(t, os.WriteFile(path, buf[:], 0644))
}

func TestCleaner_RunOnce(t *testing.T) {
	tests := []struct {
		name           string
		segments       []int64
		consumerOffset int64
		minRetain      int
		expectedDelete []int64
		expectedKeep   []int64
	}{
		{
			name:           "FullyConsumedSegmentsDeleted",
			segments:       []int64{0, 64, 128, 192},
			consumerOffset: 128,
			minRetain:      2,
			expectedDelete: []int64{0, 64},
			expectedKeep:   []int64{128, 192},
		},
		{
			name:           "SafetyTailRetainedEvenWhenConsumed",
			segments:       []int64{0, 64},
			consumerOffset: 500,
			minRetain:      2,
			expectedKeep:   []int64{0, 64},
		},
		{
			name:           "PartiallyConsumedSegmentRetained",
			segments:       []int64{0, 64, 128, 192},
			consumerOffset: 100, // inside segment 64
			minRetain:      2,
			expectedDelete: []int64{0},
			expectedKeep:   []int64{64, 128, 192},
		},
		{
			name:           "ZeroConsumerOffsetSkipsPass",
			segments:       []int64{0, 64, 128},
			consumerOffset: 0,
			minRetain:      0,
			expectedKeep:   []int64{0, 64, 128},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			logDir := filepath.Join(dir, "commitlog")
			require.NoError(t, os.MkdirAll(logDir, 0755))
			for _, start := range tt.segments {
				require.NoError(t, os.WriteFile(disk.SegmentPath(logDir, start), make([]byte, 64), 0644))
			}

			offsetPath := filepath.Join(dir, "offset", "consumer.offset")
			writeOffsetFile(t, offsetPath, tt.consumerOffset)

			c := disk.NewCleaner(logDir, testLayout, offsetPath, time.Minute, tt.minRetain)
			require.NoError(t, c.RunOnce())

			for _, start := range tt.expectedDelete {
				assert.NoFileExists(t, disk.SegmentPath(logDir, start), "segment %d should be deleted", start)
			}
			for _, start := range tt.expectedKeep {
				assert.FileExists(t, disk.SegmentPath(logDir, start), "segment %d should be retained", start)
			}
		})
	}
}

func TestCleaner_MissingConsumerOffsetSkipsPass(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "commitlog")
	require.NoError(t, os.MkdirAll(logDir, 0755))
	require.NoError(t, os.WriteFile(disk.SegmentPath(logDir, 0), make([]byte, 64), 0644))

	c := disk.NewCleaner(logDir, testLayout, filepath.Join(dir, "offset", "consumer.offset"), time.Minute, 0)
	require.NoError(t, c.RunOnce())

	assert.FileExists(t, disk.SegmentPath(logDir, 0))
}

func TestCleaner_StartAndClose(t *testing.T) {
	dir := t.TempDir()
	logDir := filepath.Join(dir, "commitlog")
	require.NoError(t, os.MkdirAll(logDir, 0755))
	for _, start := range []int64{0, 64, 128} {
		require.NoError(t, os.WriteFile(disk.SegmentPath(logDir, start), make([]byte, 64), 0644))
	}
	offsetPath := filepath.Join(dir, "offset", "consumer.offset")
	writeOffsetFile(t, offsetPath, 192)

	c := disk.NewCleaner(logDir, testLayout, offsetPath, 10*time.Millisecond, 1)
	c.Start()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(disk.SegmentPath(logDir, 0))
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	c.Close(time.Second)
	c.Close(time.Second) // idempotent
	assert.FileExists(t, disk.SegmentPath(logDir, 128))
}

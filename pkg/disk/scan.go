package disk

import (
	"os"
	"sort"
	"strconv"
)

// ParseSegmentName parses a 20-digit zero-padded segment file name into its
// start offset. Anything else is not a segment file.
func ParseSegmentName(name string) (int64, bool) {
	if len(name) != 20 {
		return 0, false
	}
	for i := 0; i < len(name); i++ {
		if name[i] < '0' || name[i] > '9' {
			return 0, false
		}
	}
	start, err := strconv.ParseInt(name, 10, 64)
	if err != nil {
		return 0, false
	}
	return start, true
}

// ListSegments returns the start offsets of the segment files in dir,
// sorted ascending. Files whose names are not exactly 20 decimal digits are
// ignored.
func ListSegments(dir string) ([]int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var starts []int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if start, ok := ParseSegmentName(e.Name()); ok {
			starts = append(starts, start)
		}
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	return starts, nil
}

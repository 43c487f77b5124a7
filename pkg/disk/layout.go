package disk

// Layout describes the fixed record geometry of a store: every record is
// PayloadSize bytes followed by a one-byte end marker, and every segment
// file holds a whole number of records.
type Layout struct {
	PayloadSize int
	SegmentSize int64
}

// Stride is the on-disk size of one record.
func (l Layout) Stride() int64 {
	return int64(l.PayloadSize) + 1
}

// AdjustedSize is the segment file size: the nominal SegmentSize rounded
// down to a multiple of the stride.
func (l Layout) AdjustedSize() int64 {
	return l.SegmentSize / l.Stride() * l.Stride()
}

// StartFor returns the start offset of the segment whose range contains
// target. Start offsets are multiples of AdjustedSize beginning at 0.
func (l Layout) StartFor(target int64) int64 {
	a := l.AdjustedSize()
	return target / a * a
}

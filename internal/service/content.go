package service

// MaxFileSize bounds the size of a single file. Contents are held in memory
// and written to the log whole.
const MaxFileSize uint64 = 1 << 30

// mergeAt writes data into old at offset, zero-filling any gap between the
// end of old and offset.
func mergeAt(old []byte, offset int64, data []byte) []byte {
	end := int(offset) + len(data)
	size := max(len(old), end)

	merged := make([]byte, size)
	copy(merged, old)
	copy(merged[offset:], data)
	return merged
}

// resize truncates data to size bytes or pads it with zeros up to size.
func resize(data []byte, size uint64) []byte {
	if uint64(len(data)) >= size {
		return data[:size:size]
	}

	padded := make([]byte, size)
	copy(padded, data)
	return padded
}

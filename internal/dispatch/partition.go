package dispatch

// Partition derives the 1-D launch geometry for a batch. The local size is
// the requested threads per block capped by the device limit; the global
// size is the batch rounded up to a whole number of work-groups, so it may
// exceed batchSize. The kernel ignores work-items past the batch.
func Partition(batchSize uint64, threadsPerBlock, maxWorkGroupSize int) (local int, global uint64) {
	local = threadsPerBlock
	if maxWorkGroupSize > 0 && maxWorkGroupSize < local {
		local = maxWorkGroupSize
	}
	if local < 1 {
		local = 1
	}
	l := uint64(local)
	global = (batchSize + l - 1) / l * l
	return local, global
}

package render

// MinFramesPerChunk is the smallest chunk worth a worker's spin-up cost
const MinFramesPerChunk = 20

// accountHeadroom is reserved from the account-wide concurrency ceiling for
// other renders sharing it.
const accountHeadroom = 2

// PlanChunks returns the number of frames each worker renders so that no more
// than workerCeiling workers are spawned, never going below MinFramesPerChunk.
// totalFrames must be >= 1.
func PlanChunks(totalFrames, workerCeiling int) int {
	ceiling := max(workerCeiling, 1)
	framesPerChunk := ceilDiv(totalFrames, ceiling)
	return max(framesPerChunk, MinFramesPerChunk)
}

// ChunkCount is the number of workers a plan spawns. Informational only.
func ChunkCount(totalFrames, framesPerChunk int) int {
	if framesPerChunk < 1 {
		return 0
	}
	return ceilDiv(totalFrames, framesPerChunk)
}

// InitialWorkerCeiling derives the first attempt's ceiling from the account
// concurrency limit and the farm's per-render hard cap.
func InitialWorkerCeiling(accountConcurrency, hardCap int) int {
	ceiling := max(accountConcurrency-accountHeadroom, 1)
	if hardCap > 0 {
		ceiling = min(ceiling, hardCap)
	}
	return ceiling
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

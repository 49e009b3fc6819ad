package afpacket

import (
	"fmt"
)

// recomputeSize recalculates the frame size, block size, and number of blocks
// to meet Linux AF_PACKET PACKET_MMAP mechanism's strict alignment requirements
// while staying within the target memory budget.
//
// AF_PACKET PACKET_MMAP requires:
// 1. frameSize must be a multiple of TPACKET_ALIGNMENT (typically 16 bytes)
// 2. blockSize must be a multiple of pageSize (typically 4096 bytes)
// 3. blockSize must be a multiple of frameSize
// 4. Total memory = blockSize * numBlocks should approximate ringBufferSizeMB
func recomputeSize(ringBufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	const tpacketAlignment = 16 // TPACKET_ALIGNMENT for AF_PACKET
	const tpacketHdrLen = 52    // TPACKET3_HDRLEN (approximate)

	if ringBufferSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("ringBufferSizeMB must be positive, got %d", ringBufferSizeMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snapLen must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("pageSize must be positive and multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	targetBytes := ringBufferSizeMB * 1024 * 1024

	// Frame = header + packet data, aligned to TPACKET_ALIGNMENT.
	rawFrameSize := tpacketHdrLen + snapLen
	frameSize = ((rawFrameSize + tpacketAlignment - 1) / tpacketAlignment) * tpacketAlignment

	minBlockSize := pageSize
	if minBlockSize < frameSize {
		minBlockSize = frameSize
	}

	// Block size must be a common multiple of pageSize and frameSize.
	blockSize = lcm(pageSize, frameSize)

	maxBlockSize := 4 * 1024 * 1024 // 4 MB
	if blockSize < minBlockSize {
		blockSize = minBlockSize
	}
	if blockSize > maxBlockSize {
		blockSize = maxBlockSize
		blockSize = (blockSize / pageSize) * pageSize
	}

	numBlocks = targetBytes / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}

	if blockSize%frameSize != 0 {
		framesPerBlock := blockSize / frameSize
		if framesPerBlock < 1 {
			framesPerBlock = 1
		}
		blockSize = framesPerBlock * frameSize
		blockSize = ((blockSize + pageSize - 1) / pageSize) * pageSize
	}

	return frameSize, blockSize, numBlocks, nil
}

// gcd computes the greatest common divisor of two integers
func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// lcm computes the least common multiple of two integers
func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return (a * b) / gcd(a, b)
}

package afpacket

import "testing"

func TestRecomputeSize(t *testing.T) {
	frameSize, blockSize, numBlocks, err := recomputeSize(8, 65535, 4096)
	if err != nil {
		t.Fatalf("recomputeSize failed: %v", err)
	}

	if frameSize%16 != 0 {
		t.Errorf("frameSize %d not aligned to 16", frameSize)
	}
	if blockSize%4096 != 0 {
		t.Errorf("blockSize %d not aligned to page size", blockSize)
	}
	if numBlocks < 1 {
		t.Errorf("numBlocks = %d, want >= 1", numBlocks)
	}

	total := blockSize * numBlocks
	target := 8 * 1024 * 1024
	if total > target*2 {
		t.Errorf("total ring %d far exceeds target %d", total, target)
	}
}

func TestRecomputeSizeInvalid(t *testing.T) {
	cases := []struct {
		mb, snap, page int
	}{
		{0, 65535, 4096},
		{8, 0, 4096},
		{8, 65535, 0},
		{8, 65535, 100}, // not a multiple of 16
	}
	for _, tc := range cases {
		if _, _, _, err := recomputeSize(tc.mb, tc.snap, tc.page); err == nil {
			t.Errorf("recomputeSize(%d, %d, %d) accepted invalid input", tc.mb, tc.snap, tc.page)
		}
	}
}

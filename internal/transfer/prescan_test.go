package transfer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanConfig() ScannerConfig {
	return ScannerConfig{
		ItemWarnLimit:  4,
		ItemBlockLimit: 6,
		DailyByteCap:   1000,
		MaxDepth:       100,
	}
}

func TestScanTotals(t *testing.T) {
	src := newFakeClient()
	buildSourceTree(src)

	scanner := NewScanner(scanConfig(), testLogger())
	result, err := scanner.Scan(context.Background(), src, []string{"root", "loose"})
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.TotalFiles)
	assert.Equal(t, int64(2), result.TotalFolders)
	assert.Equal(t, int64(5), result.TotalItems)
	assert.Equal(t, int64(400), result.EstimatedBytes)
	assert.Equal(t, 2, result.MaxDepth)
	assert.True(t, result.CanStart)
	assert.Empty(t, result.RiskFlags)
}

func TestScanFlagsItemLimitRisk(t *testing.T) {
	src := newFakeClient()
	src.addFolder("root", "root", "")
	for _, id := range []string{"f1", "f2", "f3", "f4"} {
		src.addFile(id, id+".txt", "root", 1, "")
	}

	scanner := NewScanner(scanConfig(), testLogger())
	result, err := scanner.Scan(context.Background(), src, []string{"root"})
	require.NoError(t, err)

	assert.Contains(t, result.RiskFlags, FlagItemLimitRisk)
	assert.NotContains(t, result.RiskFlags, FlagItemLimitBlock)
	assert.True(t, result.CanStart, "a warning does not block the transfer")
}

func TestScanBlocksOverItemCeiling(t *testing.T) {
	src := newFakeClient()
	src.addFolder("root", "root", "")
	for _, id := range []string{"f1", "f2", "f3", "f4", "f5", "f6"} {
		src.addFile(id, id+".txt", "root", 1, "")
	}

	scanner := NewScanner(scanConfig(), testLogger())
	result, err := scanner.Scan(context.Background(), src, []string{"root"})
	require.NoError(t, err)

	assert.Contains(t, result.RiskFlags, FlagItemLimitBlock)
	assert.False(t, result.CanStart)
	assert.NotEmpty(t, result.Warnings)
}

func TestScanFlagsDailyQuotaRisk(t *testing.T) {
	src := newFakeClient()
	src.addFile("big", "big.bin", "", 1500, "")

	scanner := NewScanner(scanConfig(), testLogger())
	result, err := scanner.Scan(context.Background(), src, []string{"big"})
	require.NoError(t, err)

	assert.Contains(t, result.RiskFlags, FlagDailyQuotaRisk)
	assert.True(t, result.CanStart, "quota risk pauses later, it does not block creation")
}

func TestCheckDestinationBlocksFullFolder(t *testing.T) {
	dst := newFakeClient()
	dst.addFolder("dest", "dest", "")
	for _, id := range []string{"e1", "e2", "e3", "e4", "e5"} {
		dst.addFile(id, id+".txt", "dest", 1, "")
	}

	scanner := NewScanner(scanConfig(), testLogger())

	warnings, canInsert, err := scanner.CheckDestination(context.Background(), dst, "dest", 1)
	require.NoError(t, err)
	assert.False(t, canInsert, "5 children + 1 root hits the ceiling of 6")
	assert.NotEmpty(t, warnings)
}

func TestCheckDestinationWarnsNearCeiling(t *testing.T) {
	dst := newFakeClient()
	dst.addFolder("dest", "dest", "")
	dst.addFile("e1", "e1.txt", "dest", 1, "")
	dst.addFile("e2", "e2.txt", "dest", 1, "")

	scanner := NewScanner(scanConfig(), testLogger())

	warnings, canInsert, err := scanner.CheckDestination(context.Background(), dst, "dest", 2)
	require.NoError(t, err)
	assert.True(t, canInsert)
	assert.Len(t, warnings, 1, "2 children + 2 roots reaches the warn threshold of 4")

	warnings, canInsert, err = scanner.CheckDestination(context.Background(), dst, "dest", 1)
	require.NoError(t, err)
	assert.True(t, canInsert)
	assert.Empty(t, warnings)
}

func TestScanFailsOnDepthCeiling(t *testing.T) {
	src := newFakeClient()
	src.addFolder("d0", "d0", "")
	src.addFolder("d1", "d1", "d0")
	src.addFolder("d2", "d2", "d1")

	scanner := NewScanner(ScannerConfig{ItemWarnLimit: 100, ItemBlockLimit: 200, DailyByteCap: 1000, MaxDepth: 1}, testLogger())
	_, err := scanner.Scan(context.Background(), src, []string{"d0"})
	assert.Error(t, err)
}

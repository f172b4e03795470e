package criticalerrors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportThenDrainReturnsAndClears(t *testing.T) {
	mb := New(t.TempDir(), "outpost", "s59-en", "zeno")

	require.NoError(t, mb.Report(111, "transport", "fleet lock timeout"))
	require.NoError(t, mb.Report(222, "status", "parse error"))

	errs, err := mb.Drain()
	require.NoError(t, err)
	require.Len(t, errs, 2)
	assert.Equal(t, "transport", errs[0].Module)
	assert.Equal(t, "status", errs[1].Module)

	again, err := mb.Drain()
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestDrainOnMissingFileReturnsEmpty(t *testing.T) {
	mb := New(t.TempDir(), "outpost", "s59-en", "nobody")
	errs, err := mb.Drain()
	require.NoError(t, err)
	assert.Empty(t, errs)
}

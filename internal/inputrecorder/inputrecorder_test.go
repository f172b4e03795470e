package inputrecorder

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpostctl/outpost/internal/agenterrors"
)

func TestRecordFlushAndReadRoundTrips(t *testing.T) {
	rec := NewRecorder()
	rec.Record("1")
	rec.Record("y")
	rec.Record("500")

	path := filepath.Join(t.TempDir(), "recorded_inputs.json")
	require.NoError(t, rec.Flush(path))

	answers, err := ReadFlushed(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "y", "500"}, answers)
}

func TestPlayerReplaysThenFailsNonInteractive(t *testing.T) {
	player := NewPlayer([]string{"1", "y"})

	a, err := player.Next()
	require.NoError(t, err)
	assert.Equal(t, "1", a)

	b, err := player.Next()
	require.NoError(t, err)
	assert.Equal(t, "y", b)

	_, err = player.Next()
	require.Error(t, err)
	assert.True(t, agenterrors.Is(err, agenterrors.CodeNotInteractive))
}

func TestReplayMatchesRecordingSequence(t *testing.T) {
	// Testable property 8: replaying [a,b,c] consumes the same sequence a
	// deterministic config phase would have produced when recording with
	// user answers [a,b,c].
	answers := []string{"a", "b", "c"}

	rec := NewRecorder()
	var recordedSeen []string
	for _, a := range answers {
		rec.Record(a)
		recordedSeen = append(recordedSeen, a)
	}

	player := NewPlayer(rec.Answers())
	var replayedSeen []string
	for i := 0; i < len(answers); i++ {
		a, err := player.Next()
		require.NoError(t, err)
		replayedSeen = append(replayedSeen, a)
	}

	assert.Equal(t, recordedSeen, replayedSeen)
}

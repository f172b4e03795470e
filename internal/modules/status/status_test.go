package status

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpostctl/outpost/internal/gamesession"
)

func TestRunLogsEmpireStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[0, {"headerData": {
			"gold": 1234,
			"freeTransporters": 2,
			"maxTransporters": 8,
			"currentResources": {"resource": 10, "1": 20, "2": 30, "3": 0, "4": 0},
			"maxResources": {"resource": 999, "1": 999, "2": 999, "3": 999, "4": 999}
		}}]]`))
	}))
	defer srv.Close()

	session, err := gamesession.New(gamesession.Config{BaseURL: srv.URL + "/"})
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	entry := logrus.NewEntry(logger)

	mod := New(entry)
	require.NoError(t, mod.Run(context.Background(), session, nil))

	require.NotEmpty(t, hook.Entries)
	assert.Equal(t, "empire status", hook.LastEntry().Message)
	assert.EqualValues(t, 1234, hook.LastEntry().Data["gold"])
}

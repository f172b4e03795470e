package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpostctl/outpost/internal/gamesession"
)

func fakeGameServer(t *testing.T) *httptest.Server {
	t.Helper()
	var mu sync.Mutex
	freeTransporters := 5
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case r.Method == http.MethodGet && strings.Contains(r.URL.RawQuery, "view=updateGlobalData"):
			_, _ = fmt.Fprintf(w, `[[0, {"headerData": {"freeTransporters": %d, "maxTransporters": 10}}]]`, freeTransporters)
		case r.Method == http.MethodGet && strings.Contains(r.URL.RawQuery, "view=city"):
			_, _ = w.Write([]byte(`x "updateBackgroundData",{"id":"100","name":"Sparta","islandId":"9","availableResources":[500,500,500,500,500],"storageCapacity":"10000"} ],["updateTemplateData" y`))
		case r.Method == http.MethodPost:
			// An accepted order takes its ships out of the free pool.
			sent, _ := strconv.Atoi(r.PostFormValue("transporters"))
			freeTransporters -= sent
			_, _ = w.Write([]byte(`[0,[0],[0],[1,[{"type":10}]]]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestRunDeliversSingleRouteInOneLeg(t *testing.T) {
	srv := fakeGameServer(t)
	defer srv.Close()

	session, err := gamesession.New(gamesession.Config{BaseURL: srv.URL + "/index.php?"})
	require.NoError(t, err)

	logger, hook := test.NewNullLogger()
	entry := logrus.NewEntry(logger)

	mod := New(entry, t.TempDir(), "acct-1")
	inputs := []string{"100", "200", "9", "fast", "50,0,0,0,0"}

	require.NoError(t, mod.Run(context.Background(), session, inputs))

	var sawFinished bool
	for _, e := range hook.AllEntries() {
		if e.Message == "transport route finished" {
			sawFinished = true
			assert.Equal(t, "Delivered", e.Data["state"])
		}
	}
	assert.True(t, sawFinished, "expected a 'transport route finished' log entry")
}

func TestParseInputsRejectsShortList(t *testing.T) {
	_, _, _, _, _, err := parseInputs([]string{"1", "2"})
	assert.Error(t, err)
}

func TestParseInputsRejectsBadCargo(t *testing.T) {
	_, _, _, _, _, err := parseInputs([]string{"1", "2", "3", "fast", "not,a,valid,cargo,list"})
	assert.Error(t, err)
}

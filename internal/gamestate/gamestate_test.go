package gamestate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGlobalDataExtractsHeaderFields(t *testing.T) {
	raw := `[[0, {"headerData": {
		"gold": 5000,
		"freeTransporters": 3,
		"maxTransporters": 10,
		"currentCityId": "12345",
		"currentResources": {"resource": 100, "1": 50, "2": 0, "3": 0, "4": 0},
		"maxResources": {"resource": 1000, "1": 1000, "2": 1000, "3": 1000, "4": 1000}
	}}]]`

	g, err := ParseGlobalData(raw)
	require.NoError(t, err)
	assert.EqualValues(t, 5000, g.Gold)
	assert.Equal(t, 3, g.FreeTransporters)
	assert.Equal(t, 10, g.MaxTransporters)
	assert.Equal(t, "12345", g.CurrentCityID)
	assert.Equal(t, [5]int64{100, 50, 0, 0, 0}, g.Resources)
	assert.Equal(t, [5]int64{1000, 1000, 1000, 1000, 1000}, g.Storage)
}

func TestParseGlobalDataMissingHeaderDataErrors(t *testing.T) {
	_, err := ParseGlobalData(`[[0, {}]]`)
	assert.Error(t, err)
}

func TestParseCityPageExtractsResourcesAndStorage(t *testing.T) {
	html := `garbage "updateBackgroundData",{"id":"555","name":"Athens","islandId":"77","availableResources":[100,200,0,0,0],"storageCapacity":"24000"} ],["updateTemplateData" more`

	city, err := ParseCityPage("555", html)
	require.NoError(t, err)
	assert.Equal(t, [5]int64{100, 200, 0, 0, 0}, city.Resources)
	assert.EqualValues(t, 24000, city.StorageCapacity)
	assert.Equal(t, "77", city.IslandID)
	assert.Equal(t, "Athens", city.Name)
}

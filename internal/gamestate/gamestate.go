// Package gamestate parses the game's `view=updateGlobalData` and
// `view=city` responses into typed snapshots, grounded on
// original_source/autoIkabot/helpers/game_state.py's parse_global_data and
// helpers/game_parser.py's getCity. It deliberately covers only the fields
// the status and transport modules need — a full building/production
// parser is out of this build's scope (spec.md Non-goals).
package gamestate

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/tidwall/gjson"
)

// GlobalData is the subset of the updateGlobalData response's headerData
// object this build consumes.
type GlobalData struct {
	Gold             int64
	Resources        [5]int64 // wood, wine, marble, crystal, sulfur
	Storage          [5]int64
	FreeTransporters int
	MaxTransporters  int
	FreeFreighters   int
	MaxFreighters    int
	Citizens         int
	Population       int
	CurrentCityID    string
}

// ParseGlobalData parses the JSON array the server returns for
// `?view=updateGlobalData&ajax=1`: `[[..., {"headerData": {...}}], ...]`.
func ParseGlobalData(raw string) (GlobalData, error) {
	root := gjson.Parse(raw)
	header := root.Get("0.1.headerData")
	if !header.Exists() {
		return GlobalData{}, fmt.Errorf("gamestate: updateGlobalData response has no headerData")
	}

	g := GlobalData{
		Gold:             header.Get("gold").Int(),
		FreeTransporters: int(header.Get("freeTransporters").Int()),
		MaxTransporters:  int(header.Get("maxTransporters").Int()),
		FreeFreighters:   int(header.Get("freeFreighters").Int()),
		MaxFreighters:    int(header.Get("maxFreighters").Int()),
		Citizens:         int(header.Get("citizens").Int()),
		Population:       int(header.Get("population").Int()),
		CurrentCityID:    header.Get("currentCityId").String(),
	}

	cr := header.Get("currentResources")
	mr := header.Get("maxResources")
	g.Resources = [5]int64{cr.Get("resource").Int(), cr.Get("1").Int(), cr.Get("2").Int(), cr.Get("3").Int(), cr.Get("4").Int()}
	g.Storage = [5]int64{mr.Get("resource").Int(), mr.Get("1").Int(), mr.Get("2").Int(), mr.Get("3").Int(), mr.Get("4").Int()}

	return g, nil
}

var (
	availableResourcesRe = regexp.MustCompile(`"availableResources"\s*:\s*\[([^\]]*)\]`)
	storageCapacityRe    = regexp.MustCompile(`"storageCapacity"\s*:\s*"?(\d+)"?`)
	islandIDRe           = regexp.MustCompile(`"islandId"\s*:\s*"?(\d+)"?`)
	cityNameRe           = regexp.MustCompile(`"name"\s*:\s*"([^"]*)"`)
)

// CityPage is the subset of a `view=city&cityId=...` page this build
// consumes.
type CityPage struct {
	ID              string
	Name            string
	IslandID        string
	Resources       [5]int64
	StorageCapacity int64
}

// ParseCityPage extracts availableResources/storageCapacity/islandId from a
// city page's HTML by direct regexp, a deliberately narrower stand-in for
// the original's getCity(), which additionally parses building positions
// this build never needs.
func ParseCityPage(cityID, html string) (CityPage, error) {
	m := availableResourcesRe.FindStringSubmatch(html)
	if m == nil {
		return CityPage{}, fmt.Errorf("gamestate: city %s page has no availableResources", cityID)
	}
	var resources [5]int64
	parts := regexp.MustCompile(`-?\d+`).FindAllString(m[1], -1)
	for i := 0; i < 5 && i < len(parts); i++ {
		v, _ := strconv.ParseInt(parts[i], 10, 64)
		resources[i] = v
	}

	var storage int64
	if sm := storageCapacityRe.FindStringSubmatch(html); sm != nil {
		storage, _ = strconv.ParseInt(sm[1], 10, 64)
	}

	page := CityPage{ID: cityID, Resources: resources, StorageCapacity: storage}
	if im := islandIDRe.FindStringSubmatch(html); im != nil {
		page.IslandID = im[1]
	}
	if nm := cityNameRe.FindStringSubmatch(html); nm != nil {
		page.Name = nm[1]
	}
	return page, nil
}

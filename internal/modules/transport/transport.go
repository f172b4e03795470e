// Package transport implements the "Transport Manager" module driving
// transportengine.Engine against a real GameSession, grounded on
// original_source/autoIkabot/helpers/routing.py's sendGoods: the same
// transportOperations/loadTransportersWithFreight action, the same
// cargo_resource/cargo_tradegoodN payload keys, and the same response-type
// 10 (accepted) / 11 (ships busy) branching, re-expressed as the engine's
// DispatchFunc.
package transport

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/outpostctl/outpost/internal/agenterrors"
	"github.com/outpostctl/outpost/internal/fleetlock"
	"github.com/outpostctl/outpost/internal/gamesession"
	"github.com/outpostctl/outpost/internal/gamestate"
	"github.com/outpostctl/outpost/internal/modregistry"
	"github.com/outpostctl/outpost/internal/transportengine"
)

const (
	ModuleID          = 5
	ModuleName        = "transport"
	ModuleSection     = "Resources"
	ModuleDescription = "Ship resources from one city to another, respecting the shared fleet lock"
)

// shipCapacityFallback is used when the global data response gives no
// per-ship capacity signal — the real figure depends on a city's harbor
// level, which this build's city parser does not read (spec.md Non-goals).
const shipCapacityFallback = 500

// recorded input layout (spec.md §4.9's replay list): origin city id,
// destination city id, destination island id, ship class, cargo amounts as
// "wood,wine,marble,crystal,sulfur".
func parseInputs(inputs []string) (originCityID, destCityID, destIsland string, class transportengine.ShipClass, cargo transportengine.CargoVector, err error) {
	if len(inputs) < 5 {
		err = fmt.Errorf("transport: expected 5 recorded inputs, got %d", len(inputs))
		return
	}
	originCityID, destCityID, destIsland = inputs[0], inputs[1], inputs[2]
	switch inputs[3] {
	case string(transportengine.ShipClassHeavy):
		class = transportengine.ShipClassHeavy
	default:
		class = transportengine.ShipClassFast
	}
	parts := strings.Split(inputs[4], ",")
	if len(parts) != 5 {
		err = fmt.Errorf("transport: cargo amounts must have 5 comma-separated values, got %d", len(parts))
		return
	}
	for i, p := range parts {
		v, perr := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if perr != nil {
			err = fmt.Errorf("transport: invalid cargo amount %q: %w", p, perr)
			return
		}
		cargo[i] = v
	}
	return
}

// New returns the registry Module. lockDir is where the SharedFleetLock
// file lives (spec.md §3), accountKey identifies the account for the lock.
func New(log *logrus.Entry, lockDir, accountKey string) modregistry.Module {
	return modregistry.Module{
		ID:          ModuleID,
		Section:     ModuleSection,
		Name:        ModuleName,
		Description: ModuleDescription,
		Run: func(ctx context.Context, session *gamesession.Session, inputs []string) error {
			originCityID, destCityID, destIsland, class, cargo, err := parseInputs(inputs)
			if err != nil {
				return err
			}

			lock := fleetlock.New(lockDir, accountKey, string(class), 15*time.Minute, 2*time.Second)
			engine := transportengine.New(transportengine.Config{
				Lock:       lock,
				Logger:     log,
				FetchCity:  cityFetcher(session),
				FetchFleet: fleetFetcher(session),
				Dispatch:   dispatcher(session, destIsland),
			})

			plan := transportengine.Plan{
				AccountKey: accountKey,
				ShipClass:  class,
				Routes: []transportengine.Route{
					{OriginCityID: originCityID, DestinationCityID: destCityID, DestinationIsland: destIsland, Cargo: cargo},
				},
			}

			result, err := engine.Execute(ctx, plan)
			if err != nil {
				return err
			}
			for _, rr := range result.Routes {
				log.WithFields(logrus.Fields{
					"origin":      rr.Route.OriginCityID,
					"destination": rr.Route.DestinationCityID,
					"state":       rr.State.String(),
					"delivered":   rr.Delivered,
				}).Info("transport route finished")
				if rr.Err != nil {
					return rr.Err
				}
			}
			return nil
		},
	}
}

func cityFetcher(session *gamesession.Session) transportengine.CityFetcher {
	return func(ctx context.Context, cityID string) (transportengine.CityState, error) {
		body, _, err := session.Get(ctx, "view=city&cityId="+cityID, nil, gamesession.RequestOptions{})
		if err != nil {
			return transportengine.CityState{}, err
		}
		page, err := gamestate.ParseCityPage(cityID, body)
		if err != nil {
			return transportengine.CityState{}, err
		}
		var freeStorage transportengine.CargoVector
		for i, r := range page.Resources {
			free := page.StorageCapacity - r
			if free < 0 {
				free = 0
			}
			freeStorage[i] = free
		}
		return transportengine.CityState{
			ID:          page.ID,
			Name:        page.Name,
			IslandID:    page.IslandID,
			Resources:   page.Resources,
			FreeStorage: freeStorage,
			Owned:       true,
		}, nil
	}
}

func fleetFetcher(session *gamesession.Session) transportengine.FleetFetcher {
	return func(ctx context.Context, cityID string, class transportengine.ShipClass) (transportengine.FleetState, error) {
		body, _, err := session.Get(ctx, "view=updateGlobalData", nil, gamesession.RequestOptions{})
		if err != nil {
			return transportengine.FleetState{}, err
		}
		g, err := gamestate.ParseGlobalData(body)
		if err != nil {
			return transportengine.FleetState{}, err
		}

		free, eta := g.FreeTransporters, 30*time.Second
		if class == transportengine.ShipClassHeavy {
			free = g.FreeFreighters
		}
		if free == 0 {
			eta = 5 * time.Minute
		}
		return transportengine.FleetState{
			ShipClass:         class,
			FreeShips:         free,
			CapacityPerShip:   transportengine.UniformCapacity(shipCapacityFallback),
			ETAOfNearestFleet: eta,
		}, nil
	}
}

func dispatcher(session *gamesession.Session, islandID string) transportengine.DispatchFunc {
	return func(ctx context.Context, route transportengine.Route, shipsUsed int) (transportengine.DispatchOutcome, error) {
		form := url.Values{}
		form.Set("action", "transportOperations")
		form.Set("function", "loadTransportersWithFreight")
		form.Set("destinationCityId", route.DestinationCityID)
		form.Set("islandId", islandID)
		form.Set("currentCityId", route.OriginCityID)
		form.Set("templateView", "transport")
		form.Set("currentTab", "tabSendTransporter")
		form.Set("transporters", strconv.Itoa(shipsUsed))
		form.Set("ajax", "1")
		for i, amount := range route.Cargo {
			if amount <= 0 {
				continue
			}
			key := "cargo_resource"
			if i > 0 {
				key = fmt.Sprintf("cargo_tradegood%d", i)
			}
			form.Set(key, strconv.FormatInt(amount, 10))
		}

		body, _, err := session.Post(ctx, "view=city", form, nil, gamesession.RequestOptions{})
		if err != nil {
			return 0, err
		}

		respType := gjson.Get(body, "3.1.0.type").Int()
		switch respType {
		case 10:
			return transportengine.DispatchAccepted, nil
		case 11:
			return transportengine.DispatchShipsBusy, nil
		default:
			return 0, agenterrors.RouteUnexpectedResponse(fmt.Sprintf("transportOperations returned type %d", respType))
		}
	}
}

package transportengine

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/outpostctl/outpost/internal/agenterrors"
	"github.com/outpostctl/outpost/internal/fleetlock"
)

// DispatchFunc is the engine's actual collaborator shape: it posts a
// transport order and reports whether the game accepted it. Kept as a
// function type rather than forcing gamesession's exact Post signature in
// this package's API, so the real caller adapts *gamesession.Session.Post
// and tests supply a plain closure.
type DispatchFunc func(ctx context.Context, route Route, shipsUsed int) (DispatchOutcome, error)

// DispatchOutcome is what the game told us after one transport-order POST.
type DispatchOutcome int

const (
	// DispatchAccepted means the game queued the transport.
	DispatchAccepted DispatchOutcome = iota
	// DispatchShipsBusy means the requested ships are not actually free yet;
	// the engine should wait out the nearest fleet's ETA and retry.
	DispatchShipsBusy
)

// CityFetcher returns the current parsed state of a city (spec.md §3
// addition; the actual HTML parsing lives outside this package's scope).
type CityFetcher func(ctx context.Context, cityID string) (CityState, error)

// FleetFetcher returns the current free-ship/capacity/ETA state for one
// ship class at one city.
type FleetFetcher func(ctx context.Context, cityID string, class ShipClass) (FleetState, error)

// Config wires an Engine to its collaborators and tunables.
type Config struct {
	Lock       *fleetlock.Lock
	FetchCity  CityFetcher
	FetchFleet FleetFetcher
	Dispatch   DispatchFunc
	Logger     *logrus.Entry

	LockTimeout        time.Duration // per-attempt timeout passed to Lock.Acquire
	LockRetries        int           // number of Acquire attempts before giving up
	MaxShipWait        time.Duration // cumulative cap on waiting for ship availability
	MaxUnexpectedTries int           // cap on "unexpected response" retries per route
	JitterMax          time.Duration // upper bound of random jitter added to ETA waits
}

func (c *Config) withDefaults() {
	if c.LockTimeout <= 0 {
		c.LockTimeout = 5 * time.Minute
	}
	if c.LockRetries <= 0 {
		c.LockRetries = 3
	}
	if c.MaxShipWait <= 0 {
		c.MaxShipWait = 2 * time.Hour
	}
	if c.MaxUnexpectedTries <= 0 {
		c.MaxUnexpectedTries = 20
	}
	if c.JitterMax <= 0 {
		c.JitterMax = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
}

// Engine executes Plans: for each route it waits for ship availability
// under the account's SharedFleetLock, computes cargo, dispatches, and
// verifies delivery, per spec.md §4.11.
type Engine struct {
	cfg Config
}

// New returns an Engine ready to Execute plans.
func New(cfg Config) *Engine {
	cfg.withDefaults()
	return &Engine{cfg: cfg}
}

// Execute acquires the plan's fleet lock (retried up to LockRetries times,
// each with a fresh LockTimeout) and then works through every route in
// order, releasing the lock on the way out regardless of outcome.
func (e *Engine) Execute(ctx context.Context, plan Plan) (BatchResult, error) {
	log := e.cfg.Logger.WithFields(logrus.Fields{
		"account":    plan.AccountKey,
		"ship_class": plan.ShipClass,
	})

	var lockErr error
	for attempt := 1; attempt <= e.cfg.LockRetries; attempt++ {
		lockErr = e.cfg.Lock.Acquire(ctx, e.cfg.LockTimeout)
		if lockErr == nil {
			break
		}
		log.WithError(lockErr).Warnf("fleet lock attempt %d/%d failed", attempt, e.cfg.LockRetries)
	}
	if lockErr != nil {
		return BatchResult{}, agenterrors.LockAcquireTimeout(plan.AccountKey + ":" + string(plan.ShipClass))
	}
	defer func() {
		if err := e.cfg.Lock.Release(); err != nil {
			log.WithError(err).Warn("fleet lock release failed")
		}
	}()

	result := BatchResult{Routes: make([]RouteResult, 0, len(plan.Routes))}
	for _, route := range plan.Routes {
		rr := e.executeRoute(ctx, plan.ShipClass, route, log)
		result.Routes = append(result.Routes, rr)
	}
	return result, nil
}

func (e *Engine) executeRoute(ctx context.Context, class ShipClass, route Route, log *logrus.Entry) RouteResult {
	state := RouteNeedShips
	var waited time.Duration
	var delivered CargoVector
	unexpectedTries := 0

	for {
		select {
		case <-ctx.Done():
			return RouteResult{Route: route, Delivered: delivered, State: RouteAborted, Err: ctx.Err()}
		default:
		}

		fleet, err := e.cfg.FetchFleet(ctx, route.OriginCityID, class)
		if err != nil {
			return RouteResult{Route: route, Delivered: delivered, State: RouteAborted, Err: err}
		}

		if fleet.FreeShips == 0 {
			if waited >= e.cfg.MaxShipWait {
				return RouteResult{Route: route, Delivered: delivered, State: RouteAborted,
					Err: agenterrors.New(agenterrors.CodeRouteUnexpectedResp, "no ships freed up within the maximum wait")}
			}
			sleep := fleet.ETAOfNearestFleet + jitter(e.cfg.JitterMax)
			waited += sleep
			log.Debugf("no free %s ships at %s, sleeping %s", class, route.OriginCityID, sleep)
			if err := sleepCtx(ctx, sleep); err != nil {
				return RouteResult{Route: route, Delivered: delivered, State: RouteAborted, Err: err}
			}
			continue
		}
		state = RouteHaveShips

		origin, err := e.cfg.FetchCity(ctx, route.OriginCityID)
		if err != nil {
			return RouteResult{Route: route, Delivered: delivered, State: RouteAborted, Err: err}
		}
		destination := CityState{ID: route.DestinationCityID, Owned: false}
		if fetched, err := e.cfg.FetchCity(ctx, route.DestinationCityID); err == nil {
			destination = fetched
		}

		remaining := route.Cargo.Sub(delivered)
		if remaining.IsZero() {
			return RouteResult{Route: route, Delivered: delivered, State: RouteDelivered}
		}

		leg := PerLegCargo(remaining, origin, destination, fleet)
		if leg.IsZero() {
			if waited >= e.cfg.MaxShipWait {
				return RouteResult{Route: route, Delivered: delivered, State: RouteAborted,
					Err: agenterrors.New(agenterrors.CodeRouteUnexpectedResp, "destination storage never freed up")}
			}
			sleep := fleet.ETAOfNearestFleet + jitter(e.cfg.JitterMax)
			waited += sleep
			if err := sleepCtx(ctx, sleep); err != nil {
				return RouteResult{Route: route, Delivered: delivered, State: RouteAborted, Err: err}
			}
			continue
		}

		shipsNeeded := ShipsNeeded(leg.Total(), fleet.CapacityPerShip.Total())
		if shipsNeeded > fleet.FreeShips {
			shipsNeeded = fleet.FreeShips
		}

		state = RouteLockedAndReadyToSend
		state = RouteSending
		outcome, err := e.cfg.Dispatch(ctx, Route{
			OriginCityID:      route.OriginCityID,
			DestinationCityID: route.DestinationCityID,
			DestinationIsland: route.DestinationIsland,
			Cargo:             leg,
		}, shipsNeeded)

		if err != nil {
			unexpectedTries++
			if unexpectedTries > e.cfg.MaxUnexpectedTries {
				return RouteResult{Route: route, Delivered: delivered, State: RouteAborted, Err: err}
			}
			log.WithError(err).Warnf("dispatch attempt %d/%d failed", unexpectedTries, e.cfg.MaxUnexpectedTries)
			if err := sleepCtx(ctx, jitter(e.cfg.JitterMax)); err != nil {
				return RouteResult{Route: route, Delivered: delivered, State: RouteAborted, Err: err}
			}
			continue
		}

		if outcome == DispatchShipsBusy {
			sleep := fleet.ETAOfNearestFleet + jitter(e.cfg.JitterMax)
			waited += sleep
			if err := sleepCtx(ctx, sleep); err != nil {
				return RouteResult{Route: route, Delivered: delivered, State: RouteAborted, Err: err}
			}
			continue
		}

		state = RouteVerifyingConsumption
		afterFleet, err := e.cfg.FetchFleet(ctx, route.OriginCityID, class)
		if err != nil {
			return RouteResult{Route: route, Delivered: delivered, State: RouteAborted, Err: err}
		}
		consumed := fleet.FreeShips - afterFleet.FreeShips
		if consumed != shipsNeeded {
			return RouteResult{Route: route, Delivered: delivered, State: RouteAborted,
				Err: agenterrors.RouteUnexpectedResponse(fmt.Sprintf(
					"ship consumption mismatch: expected %d ships consumed, observed %d", shipsNeeded, consumed))}
		}

		delivered = delivered.Add(leg)
		log.WithField("route_state", state).Debugf("leg delivered %v of %v", leg, route.Cargo)

		if delivered.Total() >= route.Cargo.Total() {
			return RouteResult{Route: route, Delivered: delivered, State: RouteDelivered}
		}
		// Partial leg delivered (cargo or ship capacity constrained); loop to
		// send the remainder as more ships/storage free up.
	}
}

func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

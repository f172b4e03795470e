package transportengine

// PerLegCargo computes one leg's cargo vector: for each resource slot,
// the minimum of the remaining amount to send, the origin's current
// stock, the combined capacity of the available ships, and — when the
// destination is owned — its free storage (spec.md §4.11.c). Pure
// function over CityState/FleetState, grounded on
// original_source/autoIkabot/helpers/naval.py's dict-lookup version.
func PerLegCargo(remaining CargoVector, origin, destination CityState, fleet FleetState) CargoVector {
	var leg CargoVector
	fleetCapacity := scaleCapacity(fleet.CapacityPerShip, fleet.FreeShips)

	for i := 0; i < resourceCount; i++ {
		amount := remaining[i]
		if origin.Resources[i] < amount {
			amount = origin.Resources[i]
		}
		if fleetCapacity[i] < amount {
			amount = fleetCapacity[i]
		}
		if destination.Owned && destination.FreeStorage[i] < amount {
			amount = destination.FreeStorage[i]
		}
		if amount < 0 {
			amount = 0
		}
		leg[i] = amount
	}
	return leg
}

func scaleCapacity(perShip CargoVector, freeShips int) CargoVector {
	var out CargoVector
	for i := range out {
		out[i] = perShip[i] * int64(freeShips)
	}
	return out
}

// ShipsNeeded returns ceil(totalCargo / capacityPerShip), the number of
// ships required to carry totalCargo at the given per-ship capacity.
// Returns 0 when there is nothing to carry, and at least 1 when there is.
func ShipsNeeded(totalCargo, capacityPerShip int64) int {
	if totalCargo <= 0 {
		return 0
	}
	if capacityPerShip <= 0 {
		return 0
	}
	ships := totalCargo / capacityPerShip
	if totalCargo%capacityPerShip != 0 {
		ships++
	}
	return int(ships)
}

// UniformCapacity builds a CargoVector whose every slot carries the same
// per-ship capacity, matching the game's single "ship capacity" number
// applying uniformly across resource kinds.
func UniformCapacity(capacity int64) CargoVector {
	var out CargoVector
	for i := range out {
		out[i] = capacity
	}
	return out
}

package states

import (
	"fmt"

	"github.com/jengzang/fleet-records-backend-go/internal/models"
)

// Signal is an observation that may move the state machine
type Signal string

// GPS and geometry signals
const (
	SignalEnteredStation Signal = "entered-station"
	SignalLeftStation    Signal = "left-station"
	SignalLeftWorkshop   Signal = "left-workshop"
	SignalDwellAway      Signal = "dwell-away"
	SignalMotionResumed  Signal = "motion-resumed"
	SignalTowardStation  Signal = "toward-station"
)

// Beacon signals, one per informative code
const (
	SignalBeaconDeparture  Signal = "beacon-departure"
	SignalBeaconArrival    Signal = "beacon-arrival"
	SignalBeaconConcluding Signal = "beacon-concluding"
	SignalBeaconReturning  Signal = "beacon-returning"
)

// beaconSignals maps informative beacon codes to signals
var beaconSignals = map[models.BeaconCode]Signal{
	models.BeaconDeparture:  SignalBeaconDeparture,
	models.BeaconArrival:    SignalBeaconArrival,
	models.BeaconConcluding: SignalBeaconConcluding,
	models.BeaconReturning:  SignalBeaconReturning,
}

// beaconStates maps informative beacon codes straight to states when GPS is absent
var beaconStates = map[models.BeaconCode]models.OperationalState{
	models.BeaconDeparture:  models.StateEmergencyDeparture,
	models.BeaconArrival:    models.StateOnIncident,
	models.BeaconConcluding: models.StateConcluding,
	models.BeaconReturning:  models.StateReturning,
}

// BeaconSignal returns the signal of an informative beacon code
func BeaconSignal(code models.BeaconCode) (Signal, bool) {
	sig, ok := beaconSignals[code]
	return sig, ok
}

// TransitionTable is the state × signal → next state policy
type TransitionTable map[models.OperationalState]map[Signal]models.OperationalState

// DefaultTransitions returns the baseline transition policy.
// Workshop is only ever an initial state.
func DefaultTransitions() TransitionTable {
	return TransitionTable{
		models.StateWorkshop: {
			SignalLeftWorkshop: models.StateReturning,
		},
		models.StateAtStation: {
			SignalLeftStation:     models.StateEmergencyDeparture,
			SignalBeaconDeparture: models.StateEmergencyDeparture,
		},
		models.StateEmergencyDeparture: {
			SignalDwellAway:      models.StateOnIncident,
			SignalBeaconArrival:  models.StateOnIncident,
			SignalEnteredStation: models.StateAtStation,
		},
		models.StateOnIncident: {
			SignalMotionResumed:    models.StateConcluding,
			SignalBeaconConcluding: models.StateConcluding,
			SignalTowardStation:    models.StateReturning,
			SignalBeaconReturning:  models.StateReturning,
			SignalEnteredStation:   models.StateAtStation,
		},
		models.StateConcluding: {
			SignalTowardStation:   models.StateReturning,
			SignalBeaconReturning: models.StateReturning,
			SignalDwellAway:       models.StateOnIncident,
			SignalBeaconArrival:   models.StateOnIncident,
			SignalEnteredStation:  models.StateAtStation,
		},
		models.StateReturning: {
			SignalEnteredStation:  models.StateAtStation,
			SignalBeaconDeparture: models.StateEmergencyDeparture,
			SignalBeaconArrival:   models.StateOnIncident,
		},
	}
}

// Next returns the state reached from s on sig, false when sig does not apply
func (t TransitionTable) Next(s models.OperationalState, sig Signal) (models.OperationalState, bool) {
	next, ok := t[s][sig]
	if !ok || next == s {
		return s, false
	}
	return next, true
}

// Validate checks that the table only names known states and never enters Workshop
func (t TransitionTable) Validate() error {
	for from, edges := range t {
		if !from.Valid() {
			return fmt.Errorf("unknown source state %d", from)
		}
		for sig, to := range edges {
			if !to.Valid() {
				return fmt.Errorf("%s on %s: unknown target state %d", from, sig, to)
			}
			if to == models.StateWorkshop {
				return fmt.Errorf("%s on %s: workshop is only reachable as an initial state", from, sig)
			}
		}
	}
	return nil
}

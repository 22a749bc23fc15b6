package simulation

import "github.com/signalsfoundry/orbital-power-sim/model"

// Examples returns ready-to-submit requests keyed by name.
func Examples() map[string]model.SimulationRequest {
	iss := model.DefaultSimulationRequest()
	iss.AltitudeKm = 420

	polar := model.DefaultSimulationRequest()
	polar.AltitudeKm = 800
	polar.InclinationDeg = 90
	polar.AreaM2 = 20
	polar.Efficiency = 0.30
	polar.DurationHours = 6
	polar.TimeStepSeconds = 120

	tle := model.DefaultSimulationRequest()
	tle.PropagationMethod = model.PropagationTLE
	tle.TLELine1 = "1 25544U 98067A   24015.50000000  .00012345  00000-0  12345-3 0  9992"
	tle.TLELine2 = "2 25544  51.6416 247.4627 0006703 130.5360 325.0288 15.72125391123456"

	return map[string]model.SimulationRequest{
		"circular_orbit_iss_like": iss,
		"circular_orbit_polar":    polar,
		"tle_orbit_iss":           tle,
	}
}

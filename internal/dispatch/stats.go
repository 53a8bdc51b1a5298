package dispatch

import (
	"strconv"

	"github.com/qapac-nav/qapac-nav/internal/geo"
	"github.com/qapac-nav/qapac-nav/internal/routecode"
)

// FormatStats builds the flat statistics record for a completed (or failed)
// route computation, mirroring PrepareStatisticsData/SendStatistics from the
// original router: start/final points are reported in lon/lat, rounded to
// five decimals (about a meter of precision), not in the engine's internal
// projected coordinates. routeId is carried as an extra field beyond the
// original's record shape, so a persistence sink can key its own rows on it.
func FormatStats(routeID uint64, routerName string, cp geo.Checkpoints, direction geo.Point, code routecode.Code, distanceM, elapsedSec float64) map[string]string {
	record := baseStatsRecord(routeID, routerName, cp, direction, code, elapsedSec)
	if code == routecode.NoError {
		record["distance"] = formatFloat(distanceM)
	}
	return record
}

// FormatException builds the statistics record for a request that ended in
// a recovered EngineFault. It carries the same point/name fields as
// FormatStats plus the exception message, and never a distance field.
func FormatException(routeID uint64, routerName string, cp geo.Checkpoints, direction geo.Point, msg string) map[string]string {
	record := baseStatsRecord(routeID, routerName, cp, direction, routecode.InternalError, 0)
	record["exception"] = msg
	return record
}

// baseStatsRecord reports start/final checkpoints as lon/lat (the engine
// stores them in projected Mercator coordinates internally, per
// geo.LonToX/LatToY), but reports the direction vector's raw components —
// it is a heading, not a coordinate, so converting it through the
// projection would be meaningless.
func baseStatsRecord(routeID uint64, routerName string, cp geo.Checkpoints, direction geo.Point, code routecode.Code, elapsedSec float64) map[string]string {
	return map[string]string{
		"routeId":         strconv.FormatUint(routeID, 10),
		"name":            routerName,
		"startLon":        formatFloat(geo.RoundDecimal(geo.XToLon(cp.Start.X), 5)),
		"startLat":        formatFloat(geo.RoundDecimal(geo.YToLat(cp.Start.Y), 5)),
		"startDirectionX": formatFloat(geo.RoundDecimal(direction.X, 5)),
		"startDirectionY": formatFloat(geo.RoundDecimal(direction.Y, 5)),
		"finalLon":        formatFloat(geo.RoundDecimal(geo.XToLon(cp.Finish.X), 5)),
		"finalLat":        formatFloat(geo.RoundDecimal(geo.YToLat(cp.Finish.Y), 5)),
		"result":          code.String(),
		"elapsed":         formatFloat(elapsedSec),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

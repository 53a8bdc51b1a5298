// Package routecode defines the closed set of outcomes a route computation
// can end in, plus the fixed log message each outcome maps to.
package routecode

// Code is a routing result. The zero value is NoError so a freshly
// constructed Code never looks like a spurious failure.
type Code int

const (
	NoError Code = iota
	Cancelled
	StartPointNotFound
	EndPointNotFound
	IntermediatePointNotFound
	PointsInDifferentMWM
	RouteNotFound
	RouteFileNotExist
	NeedMoreMaps
	NoCurrentPosition
	InconsistentMWMandRoute
	InternalError
	FileTooOld
	TransitRouteNotFoundNoNetwork
	TransitRouteNotFoundTooLongPedestrian
	RouteNotFoundRedressRouteError
)

var names = map[Code]string{
	NoError:                               "NoError",
	Cancelled:                             "Cancelled",
	StartPointNotFound:                    "StartPointNotFound",
	EndPointNotFound:                      "EndPointNotFound",
	IntermediatePointNotFound:             "IntermediatePointNotFound",
	PointsInDifferentMWM:                  "PointsInDifferentMWM",
	RouteNotFound:                         "RouteNotFound",
	RouteFileNotExist:                     "RouteFileNotExist",
	NeedMoreMaps:                          "NeedMoreMaps",
	NoCurrentPosition:                     "NoCurrentPosition",
	InconsistentMWMandRoute:               "InconsistentMWMandRoute",
	InternalError:                         "InternalError",
	FileTooOld:                            "FileTooOld",
	TransitRouteNotFoundNoNetwork:         "TransitRouteNotFoundNoNetwork",
	TransitRouteNotFoundTooLongPedestrian: "TransitRouteNotFoundTooLongPedestrian",
	RouteNotFoundRedressRouteError:        "RouteNotFoundRedressRouteError",
}

// String returns the stable code name used in statistics and logs.
func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "Unknown"
}

// logEntry is a fixed (level, message) pair for a result code.
type logEntry struct {
	level string // "warn" or "info"
	msg   string
}

var logTable = map[Code]logEntry{
	StartPointNotFound:                    {"warn", "can't find start or end node"},
	EndPointNotFound:                      {"warn", "can't find end point node"},
	IntermediatePointNotFound:             {"warn", "can't find intermediate point node"},
	PointsInDifferentMWM:                  {"warn", "points are in different MWMs"},
	RouteNotFound:                         {"warn", "route not found"},
	RouteFileNotExist:                     {"warn", "there is no routing file"},
	NeedMoreMaps:                          {"info", "routing can find a better way with additional maps"},
	Cancelled:                             {"info", "route calculation cancelled"},
	NoError:                               {"info", "route found"},
	NoCurrentPosition:                     {"info", "no current position"},
	InconsistentMWMandRoute:               {"info", "inconsistent mwm and route"},
	InternalError:                         {"info", "internal error"},
	FileTooOld:                            {"info", "file too old"},
	TransitRouteNotFoundNoNetwork:         {"warn", "no transit route is found because there's no transit network in the mwm of the route point"},
	TransitRouteNotFoundTooLongPedestrian: {"warn", "no transit route is found because pedestrian way is too long"},
	RouteNotFoundRedressRouteError:        {"warn", "route not found because of a redress route error"},
}

// LogMessage returns the fixed level/message pair for c, for use as
// structured log fields alongside route id and elapsed time.
func LogMessage(c Code) (level, msg string) {
	e, ok := logTable[c]
	if !ok {
		return "info", "unknown result code"
	}
	return e.level, e.msg
}

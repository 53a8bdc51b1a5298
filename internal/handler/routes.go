package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/qapac-nav/qapac-nav/internal/dispatch"
	"github.com/qapac-nav/qapac-nav/internal/geo"
	"github.com/qapac-nav/qapac-nav/internal/routecode"
)

const (
	wsPongWait       = 60 * time.Second
	wsPingInterval   = 30 * time.Second
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 8192

	defaultRouteTimeout = 10 * time.Second
	guiQueueBuffer      = 16
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RouteHandler serves the public route-calculation endpoint. Unlike the
// request/response handlers elsewhere in this package, it owns the full
// lifetime of one WebSocket connection: every CalculateRoute submission on
// that connection, and every event the dispatcher schedules back, flows
// through this one handler method for as long as the socket stays open.
type RouteHandler struct {
	dispatcher   *dispatch.Dispatcher
	routeTimeout time.Duration
	log          zerolog.Logger
}

func NewRouteHandler(dispatcher *dispatch.Dispatcher, routeTimeout time.Duration, log zerolog.Logger) *RouteHandler {
	if routeTimeout <= 0 {
		routeTimeout = defaultRouteTimeout
	}
	return &RouteHandler{dispatcher: dispatcher, routeTimeout: routeTimeout, log: log}
}

// calculateRouteRequest is one client submission on the stream.
type calculateRouteRequest struct {
	StartLon     float64 `json:"startLon"`
	StartLat     float64 `json:"startLat"`
	FinishLon    float64 `json:"finishLon"`
	FinishLat    float64 `json:"finishLat"`
	DirectionX   float64 `json:"directionX"`
	DirectionY   float64 `json:"directionY"`
	AdjustToPrev bool    `json:"adjustToPrev"`
}

// Stream handles GET /api/v1/routes/stream, upgrading the connection to a
// WebSocket. Each text frame the client sends is a new calculateRouteRequest;
// submitting a new one preempts whatever request is still in flight on this
// dispatcher, same as a second CalculateRoute call from any other caller
// would. The connection's outgoing frames (progress/ready/needMoreMaps/
// removeRoute) are all written from a single goroutine — the GuiQueue's
// drain loop — so concurrent dispatcher callbacks never race on the socket.
func (h *RouteHandler) Stream(c *gin.Context) {
	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	queue := dispatch.NewChanGuiQueue(guiQueueBuffer)
	defer queue.Close()

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	stopPing := h.startPinger(queue, conn)
	defer close(stopPing)

	var activeProxy *dispatch.DelegateProxy

	for {
		var req calculateRouteRequest
		if err := conn.ReadJSON(&req); err != nil {
			if activeProxy != nil {
				activeProxy.Cancel()
			}
			return
		}

		if activeProxy != nil {
			activeProxy.Cancel()
		}

		checkpoints := geo.Checkpoints{
			Start:  geo.Point{X: geo.LonToX(req.StartLon), Y: geo.LatToY(req.StartLat)},
			Finish: geo.Point{X: geo.LonToX(req.FinishLon), Y: geo.LatToY(req.FinishLat)},
		}
		direction := geo.Point{X: req.DirectionX, Y: req.DirectionY}

		activeProxy = h.dispatcher.CalculateRoute(checkpoints, direction, req.AdjustToPrev, queue, dispatch.Callbacks{
			OnReady:        func(route *dispatch.Route, code routecode.Code) { h.writeFrame(conn, "ready", readyPayload(route, code)) },
			OnNeedMoreMaps: func(routeID uint64, absentRegions []string) { h.writeFrame(conn, "needMoreMaps", gin.H{"routeId": routeID, "absentRegions": absentRegions}) },
			OnRemoveRoute:  func(code routecode.Code) { h.writeFrame(conn, "removeRoute", gin.H{"result": code.String()}) },
			OnProgress:     func(progress float64) { h.writeFrame(conn, "progress", gin.H{"progress": progress}) },
		}, h.routeTimeout)
	}
}

func readyPayload(route *dispatch.Route, code routecode.Code) gin.H {
	if route == nil {
		return gin.H{"result": code.String()}
	}
	return gin.H{
		"routeId":  route.ID,
		"router":   route.RouterName,
		"polyline": route.Polyline,
		"distance": route.DistanceMeters,
		"result":   code.String(),
	}
}

// writeFrame runs as a task on this connection's GuiQueue, which is the
// single goroutine ever allowed to call conn.WriteMessage — gorilla's
// Conn permits at most one concurrent writer, so every write, including
// pings, must funnel through here.
func (h *RouteHandler) writeFrame(conn *websocket.Conn, frameType string, payload gin.H) {
	body, err := json.Marshal(gin.H{"type": frameType, "data": payload})
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to marshal websocket frame")
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
		h.log.Debug().Err(err).Msg("failed to write websocket frame")
	}
}

// startPinger posts a ping task to queue on a timer, so pings are
// serialized with every other frame write through the same single-writer
// goroutine instead of racing a second writer against conn.
func (h *RouteHandler) startPinger(queue *dispatch.ChanGuiQueue, conn *websocket.Conn) chan struct{} {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				queue.Post(func() {
					_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
					_ = conn.WriteMessage(websocket.PingMessage, nil)
				})
			}
		}
	}()
	return stop
}

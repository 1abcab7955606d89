// Package actions holds the asynchronous actions noajax serves out of the box.
package actions

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/zjrosen/noajax/internal/hooks"
	"github.com/zjrosen/noajax/internal/log"
	"github.com/zjrosen/noajax/internal/noajax"
)

// Heartbeat is the action name clients poll.
const Heartbeat = "heartbeat"

// HeartbeatResponse is the JSON body returned by the heartbeat action.
type HeartbeatResponse struct {
	ServerTime    int64 `json:"server_time"`
	Authenticated bool  `json:"authenticated"`
}

// RegisterHeartbeat answers the heartbeat action for signed-in and
// signed-out callers. now defaults to time.Now.
func RegisterHeartbeat(r *noajax.Rerouter, now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	r.Authenticated.Add(Heartbeat, hooks.DefaultPriority, heartbeat(now, true))
	r.Anonymous.Add(Heartbeat, hooks.DefaultPriority, heartbeat(now, false))
}

func heartbeat(now func() time.Time, authenticated bool) noajax.Handler {
	return func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		resp := HeartbeatResponse{ServerTime: now().Unix(), Authenticated: authenticated}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.ErrorErr(log.CatNoAjax, "writing heartbeat", err)
		}
	}
}

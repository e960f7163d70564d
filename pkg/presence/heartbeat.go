package presence

import (
	"sync/atomic"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"github.com/campuslink/presence/internal/eventbus"
)

// sweep evicts every identified connection whose last ping is older than the
// heartbeat timeout. Runs on the hub goroutine, on the sweep ticker. For each
// evicted connection: broadcast offline, drop the registry entry, close the
// transport with a timeout close code, persist the flag best-effort.
func (h *Hub) sweep(now time.Time) {
	for clientID, st := range h.conns {
		if st.info == nil {
			continue
		}

		if now.Sub(st.info.LastPing) <= h.opts.HeartbeatTimeout {
			continue
		}

		userID := st.info.UserID
		h.logger.Warn("user timed out",
			"user_id", userID,
			"client_id", clientID,
			"last_ping", st.info.LastPing,
		)

		h.broadcastStatus(userID, false)

		delete(h.conns, clientID)
		atomic.AddInt64(&h.connectedClients, -1)
		atomic.AddInt64(&h.identifiedUsers, -1)

		if err := st.client.Close(gorillaws.CloseNormalClosure, "connection timeout"); err != nil {
			h.logger.Warn("error closing timed out connection", "client_id", clientID, "error", err)
		}

		h.persistOnline(userID, false)
		h.publish(eventbus.EventUserTimeout, map[string]string{"user_id": userID, "client_id": clientID})
	}
}

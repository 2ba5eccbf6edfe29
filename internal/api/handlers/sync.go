package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/church-connect/backend/internal/api/middleware"
	"github.com/church-connect/backend/internal/sync"
)

// RunSync triggers a batch sync of all due connections. It is called by an
// external cron and protected by the sync secret middleware.
func RunSync(orchestrator *sync.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()

		batch, err := orchestrator.RunDueSyncs(r.Context(), time.Now().UTC())
		if err != nil {
			log.Printf("Batch sync failed: %v", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Batch sync failed")
			return
		}

		log.Printf("Batch sync processed %d connections in %s",
			batch.ConnectionsProcessed, time.Since(started).Round(time.Millisecond))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(batch)
	}
}

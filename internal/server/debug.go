package server

import "net/http"

// handleDebugDump writes the in-memory last-fetched DR list to disk as
// msgpack, for offline inspection. Dev-only, gated by DEV_MODE.
func (s *Server) handleDebugDump(w http.ResponseWriter, r *http.Request) {
	if s.snap == nil {
		writeError(w, http.StatusNotImplemented, "snapshot cache not configured")
		return
	}
	if err := s.snap.Dump(); err != nil {
		s.log.Error().Err(err).Msg("debug dump failed")
		writeError(w, http.StatusInternalServerError, "dump failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "snapshot dumped"})
}

package server

import (
	"net/http"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/process"
)

// handleLiveness serves the liveness contract spec.md §6 requires
// ({status, message}, 200 OK). With ?verbose=1 it is enriched with process
// RSS memory, open file descriptors and uptime, reusing the teacher's
// gopsutil dependency for host introspection.
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "ok",
		"message": "dr-ratings " + s.version,
	}

	if r.URL.Query().Get("verbose") == "1" {
		resp["uptime"] = humanize.Time(s.startedAt)
		if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
			if mem, err := proc.MemoryInfo(); err == nil {
				resp["rss"] = humanize.Bytes(mem.RSS)
			}
			if fds, err := proc.NumFDs(); err == nil {
				resp["open_fds"] = fds
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

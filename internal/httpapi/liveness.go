package httpapi

import (
	"context"
	"net/http"
)

// SubsystemCheck is one named dependency the liveness handler probes.
type SubsystemCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type subsystemResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type livenessResponse struct {
	Status     string            `json:"status"`
	Subsystems []subsystemResult `json:"subsystems"`
}

// LivenessHandler serves GET /: it runs every check and fuses the results
// into a single status. All healthy is "ok", a partial failure is
// "degraded" (still serving, something is unreachable), and every check
// failing is "unhealthy".
func LivenessHandler(checks []SubsystemCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := make([]subsystemResult, len(checks))
		healthy, total := 0, len(checks)
		for i, c := range checks {
			err := c.Check(r.Context())
			results[i] = subsystemResult{Name: c.Name, Healthy: err == nil}
			if err != nil {
				results[i].Error = err.Error()
			} else {
				healthy++
			}
		}

		status := fuseStatus(healthy, total)
		code := http.StatusOK
		if status == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeOK(w, code, livenessResponse{Status: status, Subsystems: results})
	}
}

func fuseStatus(healthy, total int) string {
	switch {
	case total == 0 || healthy == total:
		return "ok"
	case healthy == 0:
		return "unhealthy"
	default:
		return "degraded"
	}
}

// Package health describes the availability of model-backed components.
package health

// Status reports whether a model-backed component is serving real results.
type Status string

const (
	// Ready means the real backend answered the last call.
	Ready Status = "ready"

	// Degraded means the backend exists but the last call fell back.
	Degraded Status = "degraded"

	// Unavailable means no backend could be loaded; every call falls back.
	Unavailable Status = "unavailable"
)

// Worst returns the least healthy of the given statuses.
func Worst(statuses ...Status) Status {
	worst := Ready
	for _, s := range statuses {
		switch s {
		case Unavailable:
			return Unavailable
		case Degraded:
			worst = Degraded
		}
	}
	return worst
}

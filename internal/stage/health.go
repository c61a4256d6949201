package stage

// Health is the result of a stage readiness probe. The runner refuses to
// start a run when any enabled stage reports Ready false; Detail carries the
// reason shown to the user.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy reports a stage as ready to run.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy reports a stage as unable to run, with the blocking condition.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

package engine

type ApplicationConfig struct {
	// The application name used in log lines.
	Name string
	// How many times per second sources are polled. Defaults to 60.
	TickRate float64
	LogLevel string
}

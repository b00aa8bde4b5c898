package observability

// ServiceName is reported in logs and on /health.
const ServiceName = "sprint-weather-dashboard"

// Version is overridden at build time with -ldflags "-X .../observability.Version=...".
var Version = "dev"

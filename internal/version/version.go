package version

// AppVersion is overridden at release time via -ldflags.
var AppVersion = "0.3.1"

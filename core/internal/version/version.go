package version

// Version is overridden at build time with -ldflags "-X zipfetch/core/internal/version.Version=...".
var Version = "dev"

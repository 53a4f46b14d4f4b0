package version

// Version is the current version of roomdrop.
// This value can be overridden at build time using:
//
//	go build -ldflags="-X 'github.com/roomdrop/roomdrop/internal/version.Version=v1.0.0'"
var Version = "dev"

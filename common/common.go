// Package common holds process-wide settings shared by the binaries.
package common

const PackageName = "threshold-secret-registry"

// Version is set at build time via -ldflags "-X .../common.Version=..."
var Version = "dev"

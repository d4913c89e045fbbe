// Package buildinfo exposes version information injected at build time.
//
//	go build -ldflags "-X github.com/yndnr/dirstore-go/internal/infra/buildinfo.Version=v1.0.0"
//
// When ldflags are absent, Get falls back to the module build info embedded
// by the Go toolchain.
package buildinfo

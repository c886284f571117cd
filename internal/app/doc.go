// Package app contains the core application logic. It wires the native
// modules into a registry, checks them against their manifests, and runs a
// script against them, decoupled from any specific entrypoint like a CLI.
package app

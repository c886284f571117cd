// Package cli turns command-line arguments into an app.Config. Bad input is
// reported as an *ExitError carrying the process exit code, so main stays a
// thin shell around app.NewApp and App.Run.
package cli

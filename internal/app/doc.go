// Package app contains the core application logic: the App struct, its
// configuration, and the run lifecycle from workflow loading through split
// generation, execution, and post-execution reporting, decoupled from any
// specific entrypoint like a CLI.
package app

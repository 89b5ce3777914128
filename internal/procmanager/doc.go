// Package procmanager provides functionality for running external command-line
// tools as managed child processes.
//
// A Runner executes one-shot commands with a timeout and classifies failures.
// A SessionManager runs long-lived interactive processes, publishing their
// output as events and accepting input until they are closed or exit. A
// Cancellable runs a command that one caller waits on and another may cancel.
//
// Running processes are tracked in a Registry keyed by caller-chosen id. At
// most one process is registered per id; registering a new one kills the old.
package procmanager

// Command vqueue pushes, reads and inspects vqueue queues from the shell.
//
// Queues live under a base path taken from the configuration file, the
// VQUEUE_BASE_PATH environment variable or --base-path, in increasing
// order of precedence.
package main

// Package command defines the dirstore command-line interface.
//
// Every command works on one storage directory (--dir) whose entries are
// decoded with one codec (--codec). Global flags override the config file
// and DIRSTORE_* environment variables.
package command

// Package services assembles the devopsd service graph.
//
// Build turns a loaded configuration into phase agents, the secrets gate
// and the orchestrator. Both binaries use it so that the daemon and the
// in-process CLI run identical workflows. Accessor methods on Registry
// retrieve individual services.
package services

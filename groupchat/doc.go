// Package groupchat coordinates multiple independent agents taking turns in
// a shared conversation. A SelectionStrategy picks the next agent, the
// chosen agent is invoked with the full transcript, and a
// TerminationStrategy decides when the conversation stops; the Orchestrator
// drives that loop with a hard iteration cap.
//
// Turns are strictly sequential within one Orchestrator: each turn depends
// on the history produced by the previous turn, so no two agents are ever
// invoked concurrently in the same loop.
package groupchat

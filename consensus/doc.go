// Package consensus implements BA*, the Byzantine agreement protocol of
// Algorand, as a round based engine.
//
// Every round a node waits for input, proposes a block if it has enough
// transactions and is selected by sortition, and then takes the highest
// priority proposal it heard of to a committee vote. The vote first reduces
// the candidates to a single block hash or the empty hash and then runs a
// binary ballot between the two. A final step classifies the outcome: final
// blocks are committed, tentative ones are held until a later final block
// confirms them.
package consensus

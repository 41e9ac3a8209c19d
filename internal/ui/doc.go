// Package ui implements a terminal status monitor for the submission engine using bubbletea's Elm architecture.
//
// The [Model] polls the engine's status snapshot on a bubbletea tick, renders the pending queue
// with a bubbles list and appends engine lifecycle events as they arrive on a channel.
// The monitor only observes; the engine keeps running on its own goroutines.
//
// Keys: o toggles the network state reported to the engine, r refreshes immediately, q quits.
package ui

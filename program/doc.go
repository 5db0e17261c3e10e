// Package program turns traced module applications into executable graphs.
//
// A program is built with the functional API: create input symbols, apply
// modules to them, and hand the resulting output symbols to New. Construction
// walks the recorded provenance, validates that the graph is a connected DAG
// and fixes a deterministic execution order. Each Call then runs the nodes
// concurrently wherever dependencies allow, over fresh per-run state.
//
// Programs are themselves modules, so a whole program can be applied inside
// another trace. Compile attaches a reward, optimizer and metrics, after
// which Fit, Evaluate and Predict drive batched training and inference.
package program

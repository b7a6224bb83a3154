// ABOUTME: Package pipeline runs dependency-ordered capability stages over a write-once RunContext
// ABOUTME: Also holds the concrete weather→prediction and weather→activities pipelines and the Runner policy

// Package pipeline provides the orchestrator of the gateway.
//
// A pipeline is an ordered list of StageSpecs. The Orchestrator executes them
// strictly in sequence; each stage's input mapper reads only what earlier
// stages (and the seed "input" key) wrote into the RunContext. The first
// failing stage ends the run with a Partial result.
//
// The Runner wraps the orchestrator with a Policy deciding which results are
// delivered: the orchestrator context when it completed, or a best-effort
// direct recompute against local capabilities.
package pipeline

// Package pipeline moves raw captured items through feature extraction and
// normalization into a ResultSink, and drains that sink into a clustering
// engine.
//
// Data flows
//
//	Source -> InputQueue -> Workers (parallel) -> ResultSink -> Consumer -> Engine
//
// A single Feeder hands out work permission round robin to idle workers.
// Workers serialize their writes into the ResultSink with its advisory
// ownership token, which any party can force-clear during recovery. The
// Consumer is the only goroutine that touches the engine.
//
// Every loop polls a stop flag, so Kill returns within a bounded number of
// poll intervals once in-flight items finish.
package pipeline

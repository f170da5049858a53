/*
Package concurrency provides generic channel-based pipeline primitives.

Features:
  - Generator: turn a slice into a channel
  - FanIn / FanOutFanIn: merge or distribute across goroutines
  - Pipeline / PipelineWithErrors: run one transform stage (chain by composing)
  - OrDone / Tee / Batch / Filter / Map / Take: common channel combinators
*/
package concurrency

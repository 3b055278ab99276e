// Package solver adapts gonum's optimizers to the bounded parameter problems
// posed by the estimators and controllers.
//
//   - [Param]: a named decision variable with optional bounds
//   - [Problem]: parameters plus a scalar objective
//   - [Solve]: bounded minimization with restarts and multistart
//   - [Status]: application status of a solve, success or failure
//   - [Loss]: l1 dead-band and squared error measures
//
// Bounds are enforced by a change of variables (tanh for two sided bounds,
// exp for one sided bounds), so the underlying methods run unconstrained.
// A parameter with equal bounds is held fixed and removed from the search.
//
// # Concurrency
//
// With Options.Starts greater than one the starts run concurrently and the
// objective is called from several goroutines. Objectives must not share
// mutable state (integrator scratch buffers in particular).
package solver

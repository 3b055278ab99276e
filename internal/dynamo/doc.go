// Package dynamo provides the core primitives shared by the estimation and
// control exercises.
//
// The package defines the interfaces and types every model, integrator and
// policy is written against:
//
//   - [State]: vector representing system state
//   - [System]: interface for ODE systems (dX/dt = f(X, u, t))
//   - [Integrator]: fixed step numerical integrator
//   - [Controller]: state feedback policy
//   - [Configurable]: models with named, adjustable parameters
//
// # Example
//
//	model := models.NewFOPDT(2, 4)
//	integ := integrators.NewRK4()
//	s := sim.New(model, integ)
//	result, _ := s.Run(ctx, dynamo.State{0}, cfg, sim.Constant(dynamo.Control{1}))
//
// Integrators keep scratch buffers and are NOT safe for concurrent use.
// Objectives evaluated from several goroutines build their own integrator.
package dynamo

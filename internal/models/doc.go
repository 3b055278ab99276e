// Package models implements the process models used by the estimation and
// control exercises.
//
//   - [ExpDecay]: dx/dt = -k x for one or more independent channels
//   - [ThirdOrder]: x''' = a x'' + b x' + c x + d as a first order system
//   - [FOPDT]: tau dy/dt = -y + K u
//   - [Flow]: tau dF/dt = -F + Cv u + d
//   - [CSTR]: exothermic reactor with cooling jacket
//
// Every model implements [dynamo.System] and [dynamo.Configurable], so an
// estimator can rebuild a model for any trial parameter vector.
package models

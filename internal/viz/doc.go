// Package viz renders exercise results and running loops in the terminal.
//
// The package has three parts:
//
//   - [RenderSeries] and [RenderReport]: asciigraph line charts of result
//     series, one chart per figure panel
//   - [LoopModel]: a Bubble Tea view that steps a closed loop one cycle per
//     tick and charts the measured, estimated and setpoint outputs
//   - [Pick]: an exercise picker for the live command
//
// # Key Bindings
//
//	Space - Pause/Resume the loop
//	+/-   - Faster/slower cycles
//	Q     - Quit
package viz

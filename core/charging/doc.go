// Package charging drives the smart charging state machine of one vehicle.
//
// A Controller is evaluated on a periodic tick and on the plug, unplug,
// charge-start and charge-stop lifecycle events. It asks the solver when the
// next charge should begin, starts and stops charging through the vehicle
// collaborators, learns the real charging power from completed sessions and
// answers user commands. All methods must be called from a single goroutine;
// the controller holds no locks.
package charging

// Package statebus holds a single current value and fans it out to observers.
//
// # Components
//
//   - [Bus] stores the latest value and replaces it whole on every [Bus.Publish].
//   - Channel subscribers get a one-slot buffer. A slow subscriber only ever
//     sees the newest value; intermediate values are overwritten.
//   - Watchers are called synchronously, in publish order, for every value.
//
// # What this package must NOT do
//
//   - Interpret the values it carries.
//   - Import otpflow or any sibling internal package.
package statebus

// Package throttle limits repeated failures per key, such as login
// attempts per username, within a sliding window.
package throttle

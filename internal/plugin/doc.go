// Package plugin is the lifecycle controller of the verified accounts plugin.
//
// A Controller is built once per boot by the host and passed explicitly to
// the pieces that need it. Its state machine:
//
//	Uninitialized -> RequirementsChecked -> Active
//	                                     -> Disabled
//
// Initialize runs when the host is ready. When every Requirement passes it
// loads the "verified" text domain and hooks the profile control and badge
// renderer into the host. Otherwise it shows an admin notice and deactivates
// the plugin on the next admin page load. A failed requirement check is an
// administrative state, not an error: nothing crashes.
//
// Leaving Disabled takes an administrator reactivating the plugin, which
// makes the host boot a new Controller.
package plugin

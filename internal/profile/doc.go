// Package profile adds the verified toggle to the admin profile edit screen.
//
// Rendering and saving both require the edit_users capability. A save from
// anyone else is skipped without error so the form does not reveal which
// fields are privileged.
package profile

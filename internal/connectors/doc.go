// Package connectors assembles the provider registrations.
//
// Each provider lives in its own package and exposes a Registration
// function. Registrations wires them with the deployment's redirect URL in
// the fixed catalog order used by the provider registry.
package connectors

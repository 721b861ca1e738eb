// Package evidence models the opaque, evidence-item side of the push
// attestation protocol: items that can render themselves into the
// capability-negotiation payload of a create request and the
// evidence-collected payload of an update request. The harness never
// inspects the content it renders, only shuttles it; see certification.go
// and eventlog.go for the two concrete families and mock.go for the fixture
// data used to populate them.
package evidence

// Item is anything that can be carried inside an attestation task's evidence
// list. Each method may return nil when the corresponding capability or
// collected payload has not been set, matching Certification.render_supported
// / render_collected's "return None" behaviour in the original implementation.
type Item interface {
	// RenderSupported returns the JSON-serializable capability-negotiation
	// payload sent with the create (POST) request, or nil if unset.
	RenderSupported() map[string]any

	// RenderCollected returns the JSON-serializable evidence payload sent
	// with the update (PATCH) request, or nil if unset.
	RenderCollected() map[string]any

	// Clone returns an independent copy, so one canonical Item can seed
	// many tasks without any task's use of it racing another's.
	Clone() Item
}

package notifysvc

import "context"

// PassthroughView is the default ViewResolver. No templating layer is in
// scope for this engine (address/profile and message rendering belong to
// the delivery backend named by a channel's endpoint, per the batch
// payload shape resolved for the notification executor); Render merely
// forwards the view name and spec fields verbatim, trusting the receiving
// endpoint to interpret them.
type PassthroughView struct{}

// Render implements ViewResolver.
func (PassthroughView) Render(ctx context.Context, view string, spec map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(spec)+1)
	for k, v := range spec {
		out[k] = v
	}
	out["view"] = view
	return out, nil
}

// IdentityAddressResolver is a placeholder AddressResolver: it treats the
// caller-supplied userRef as already being the delivery address for every
// channel. Real deployments supply their own resolver backed by a user
// profile service; this one exists so cmd/engine can run standalone
// without one.
type IdentityAddressResolver struct{}

// ResolveAddress implements AddressResolver.
func (IdentityAddressResolver) ResolveAddress(ctx context.Context, userRef string, channel Channel) (string, error) {
	return userRef, nil
}

package flow

import (
	"fmt"

	"github.com/Suhaibinator/SBridge/pkg/object"
	"github.com/Suhaibinator/SBridge/pkg/view"
)

// Property names set on every view pair before the first handler runs.
const (
	PropRequest  = "req"    // On the response view, the request view
	PropResponse = "res"    // On the request view, the response view
	PropApp      = "app"    // On both views, the shared application context
	PropLocals   = "locals" // On the response view, per-run scratch data
)

// Wire cross-links a request view and a response view the way the emulated
// framework initialises its objects. Writes go through the views, so a native
// object that already owns one of these names receives the value itself.
func Wire(req, res *view.View, app object.Object) error {
	assignments := []struct {
		v     *view.View
		name  string
		value any
	}{
		{req, PropResponse, res},
		{req, PropApp, app},
		{res, PropRequest, req},
		{res, PropApp, app},
	}
	for _, a := range assignments {
		if err := a.v.Set(a.name, a.value); err != nil {
			return fmt.Errorf("wire %s: %w", a.name, err)
		}
	}

	locals, err := res.Get(PropLocals)
	if err != nil {
		return fmt.Errorf("wire %s: %w", PropLocals, err)
	}
	if locals == nil {
		if err := res.Set(PropLocals, object.NewRecord()); err != nil {
			return fmt.Errorf("wire %s: %w", PropLocals, err)
		}
	}
	return nil
}

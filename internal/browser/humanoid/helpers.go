package humanoid

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/surfer/api/schemas"
)

// boxToCenter calculates the geometric center of an element's geometry.
func boxToCenter(geo *schemas.ElementGeometry) (center Vector2D, valid bool) {
	if geo == nil || len(geo.Vertices) < 8 {
		return Vector2D{}, false
	}
	centerX := (geo.Vertices[0] + geo.Vertices[2] + geo.Vertices[4] + geo.Vertices[6]) / 4
	centerY := (geo.Vertices[1] + geo.Vertices[3] + geo.Vertices[5] + geo.Vertices[7]) / 4
	return Vector2D{X: centerX, Y: centerY}, true
}

// locate reads the element geometry fresh. A nil result with a nil error
// means the element is gone or has no rendered area.
func (c *Controller) locate(ctx context.Context, selector string) (*schemas.ElementGeometry, error) {
	geo, err := c.executor.GetElementGeometry(ctx, selector)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("humanoid: geometry retrieval failed for '%s': %w", selector, err)
	}
	if geo == nil || len(geo.Vertices) < 8 || geo.Width <= 0 || geo.Height <= 0 {
		c.logger.Debug("Target is not on the page or not rendered.", zap.String("selector", selector))
		return nil, nil
	}
	return geo, nil
}

// runBool executes a script that reports success as a JSON boolean.
func (c *Controller) runBool(ctx context.Context, script string) (bool, error) {
	raw, err := c.executor.ExecuteScript(ctx, script)
	if err != nil {
		return false, err
	}
	var ok bool
	if err := json.Unmarshal(raw, &ok); err != nil {
		return false, fmt.Errorf("humanoid: unexpected script result %s: %w", string(raw), err)
	}
	return ok, nil
}

// jsLiteral encodes v for safe interpolation into a script.
func jsLiteral(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}

// internal/browser/humanoid/vector.go
package humanoid

import "math"

// Vector2D is a point or displacement in viewport pixels.
type Vector2D struct {
	X float64
	Y float64
}

// Add returns v + other.
func (v Vector2D) Add(other Vector2D) Vector2D {
	return Vector2D{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub returns v - other.
func (v Vector2D) Sub(other Vector2D) Vector2D {
	return Vector2D{X: v.X - other.X, Y: v.Y - other.Y}
}

// Mul scales v.
func (v Vector2D) Mul(scalar float64) Vector2D {
	return Vector2D{X: v.X * scalar, Y: v.Y * scalar}
}

// Dist is the Euclidean distance between two points.
func (v Vector2D) Dist(other Vector2D) float64 {
	return math.Hypot(v.X-other.X, v.Y-other.Y)
}

// Within reports whether both axis deltas to other are strictly below eps.
func (v Vector2D) Within(other Vector2D, eps float64) bool {
	return math.Abs(v.X-other.X) < eps && math.Abs(v.Y-other.Y) < eps
}

// Ease moves v toward target by factor, the per-tick exponential smoothing
// step. A factor of 1 lands on target.
func (v Vector2D) Ease(target Vector2D, factor float64) Vector2D {
	return v.Add(target.Sub(v).Mul(factor))
}

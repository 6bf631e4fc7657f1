package simulation

import (
	"fmt"
	"math"
	"math/rand/v2"

	"indoor-positioning/internal/common"

	"github.com/google/uuid"
)

const (
	accelerationScale = 5.0  // how much velocity can change per second
	maxSpeed          = 10.0 // units per second
)

// Target is a moving receiver whose position is estimated.
type Target struct {
	id       string
	position common.Vector
	velocity common.Vector
	rng      *rand.Rand
}

// NewTarget creates a target at rest at pos. rng drives its random walk;
// nil selects the global generator.
func NewTarget(pos common.Vector, rng *rand.Rand) *Target {
	return &Target{
		id:       fmt.Sprintf("target-%s", uuid.NewString()[:8]),
		position: pos.Clone(),
		velocity: common.NewVector(pos.Dimension()),
		rng:      rng,
	}
}

// GetID returns the unique identifier of the target.
func (t *Target) GetID() string {
	return t.id
}

// GetPosition returns a copy of the current position.
func (t *Target) GetPosition() common.Vector {
	return t.position.Clone()
}

// SetPosition sets the position of the target.
func (t *Target) SetPosition(pos common.Vector) error {
	if pos.Dimension() != t.position.Dimension() {
		return fmt.Errorf("dimension mismatch: expected %d, got %d", t.position.Dimension(), pos.Dimension())
	}
	t.position = pos.Clone()
	return nil
}

// Update performs one step of a speed-limited random walk, bouncing off
// bounds. Invalid bounds leave the target in place.
func (t *Target) Update(deltaTime float64, bounds []float64) {
	dim := t.position.Dimension()
	if len(bounds) != dim*2 {
		return
	}

	for i := 0; i < dim; i++ {
		t.velocity[i] += (float64n(t.rng)*2 - 1) * accelerationScale * deltaTime
	}
	if speed := t.velocity.Norm(); speed > maxSpeed {
		t.velocity = t.velocity.MultiplyByScalar(maxSpeed / speed)
	}

	newPos, err := t.position.Add(t.velocity.MultiplyByScalar(deltaTime))
	if err != nil {
		return
	}

	for i := 0; i < dim; i++ {
		lo, hi := bounds[i*2], bounds[i*2+1]
		if newPos[i] < lo {
			newPos[i] = lo + (lo - newPos[i])
			t.velocity[i] *= -0.8
		} else if newPos[i] > hi {
			newPos[i] = hi - (newPos[i] - hi)
			t.velocity[i] *= -0.8
		}
		// a reflection can overshoot the opposite bound on large steps
		newPos[i] = math.Min(math.Max(newPos[i], lo), hi)
	}
	t.position = newPos
}

func (t *Target) String() string {
	return fmt.Sprintf("Target[%s] Pos: %s Vel: %s", t.id, t.position, t.velocity)
}

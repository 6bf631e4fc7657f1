package robust

// State is the lifecycle state of an estimator.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// lock is the Running flag. It is advisory: every setter and Estimate
// consult it before touching any field.
type lock struct {
	state State
}

func (l *lock) check() error {
	if l.state == Running {
		return ErrLocked
	}
	return nil
}

// acquire moves Idle -> Running. The returned release must be deferred so
// the estimator goes back to Idle on every exit path, panics included.
func (l *lock) acquire() (release func(), err error) {
	if err := l.check(); err != nil {
		return nil, err
	}
	l.state = Running
	return func() { l.state = Idle }, nil
}

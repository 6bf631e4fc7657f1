package robust

// Listener receives estimation events. Callbacks run synchronously on the
// goroutine calling Estimate while the estimator is Running, so any attempt
// to mutate the estimator from a callback fails with ErrLocked.
type Listener[E any] interface {
	OnEstimateStart(estimator E)
	OnEstimateEnd(estimator E)
	OnEstimateNextIteration(estimator E, iteration int)
	OnEstimateProgressChange(estimator E, progress float64)
}

// ListenerFuncs adapts optional functions to a Listener. Nil fields are skipped.
type ListenerFuncs[E any] struct {
	Start          func(E)
	End            func(E)
	NextIteration  func(E, int)
	ProgressChange func(E, float64)
}

func (l ListenerFuncs[E]) OnEstimateStart(e E) {
	if l.Start != nil {
		l.Start(e)
	}
}

func (l ListenerFuncs[E]) OnEstimateEnd(e E) {
	if l.End != nil {
		l.End(e)
	}
}

func (l ListenerFuncs[E]) OnEstimateNextIteration(e E, iteration int) {
	if l.NextIteration != nil {
		l.NextIteration(e, iteration)
	}
}

func (l ListenerFuncs[E]) OnEstimateProgressChange(e E, progress float64) {
	if l.ProgressChange != nil {
		l.ProgressChange(e, progress)
	}
}

// progressNotifier forwards progress values once they moved by at least delta.
type progressNotifier struct {
	delta  float64
	last   float64
	notify func(float64)
}

func newProgressNotifier(delta float64, notify func(float64)) *progressNotifier {
	return &progressNotifier{delta: delta, notify: notify}
}

func (p *progressNotifier) update(progress float64) {
	if p.notify == nil {
		return
	}
	progress = min(max(progress, 0), 1)
	if progress-p.last >= p.delta || (progress == 1 && p.last < 1) {
		p.last = progress
		p.notify(progress)
	}
}

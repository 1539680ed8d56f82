package discovery

import (
	"github.com/itsnelsonvargas/ClickTok/internal/models"
	"github.com/itsnelsonvargas/ClickTok/internal/outcome"
)

// Run is one asynchronous discovery call.
type Run struct {
	ID      string
	Limit   int
	Filters models.Filters

	found    *mailbox
	done     chan struct{}
	result   []models.Product
	outcomes []StrategyOutcome
}

// StrategyOutcome records what one strategy produced during a run.
type StrategyOutcome struct {
	Strategy string
	Result   outcome.Result
}

func newRun(id string, limit int, filters models.Filters) *Run {
	return &Run{
		ID:      id,
		Limit:   limit,
		Filters: filters,
		found:   newMailbox(),
		done:    make(chan struct{}),
	}
}

// Next blocks until the next accepted product is available. It returns false
// once the run has finished and every product has been delivered.
func (r *Run) Next() (models.Product, bool) {
	return r.found.pop()
}

// Done is closed when the run has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes and returns the ranked products.
func (r *Run) Wait() []models.Product {
	<-r.done
	return r.result
}

// Outcomes lists each attempted strategy in order. Valid after Wait.
func (r *Run) Outcomes() []StrategyOutcome {
	<-r.done
	return r.outcomes
}

func (r *Run) finish(result []models.Product, outcomes []StrategyOutcome) {
	r.result = result
	r.outcomes = outcomes
	r.found.close()
	close(r.done)
}

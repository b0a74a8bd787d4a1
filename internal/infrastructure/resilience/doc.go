/*
Package resilience provides a circuit breaker for loops that retry a remote
operation.

locatord resolves its primary layer on a timer. While the broker is
unreachable every attempt costs a dial timeout, so the refresh loop runs
its attempts through a Breaker and skips ticks while it is open.

# Usage

	breaker := resilience.New("refresh", resilience.Settings{
		Failures: 3,
		Cooldown: time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Info("Breaker state changed", zap.Stringer("from", from), zap.Stringer("to", to))
		},
	})

	err := breaker.Execute(func() error {
		return resolve(ctx)
	})
	if errors.Is(err, resilience.ErrOpen) {
		// skipped
	}

# States

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[trial ok]-> Closed
	                       ^                      |
	                       +---[trial failed, cooldown doubled]
*/
package resilience

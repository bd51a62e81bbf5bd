/*
Package resilience provides the circuit breaker that gates a remote peer link.

# Overview

A peer whose calls keep failing or timing out is reported as unavailable to
the proxy bridge instead of stalling every blocking forward. The breaker opens
after a run of consecutive failures, stays open for a cooldown, and then admits
a limited number of probe calls before closing again.

# Usage

	breaker := resilience.New("peer", resilience.Settings{
		MaxFailures: 5,
		Cooldown:    30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Info("breaker state", zap.String("name", name), zap.Stringer("to", to))
		},
	})

	done, err := breaker.Allow()
	if err != nil {
		return err
	}
	err = send(frame)
	done(err == nil)

# States

	Closed --[failures]-> Open --[cooldown]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open
*/
package resilience

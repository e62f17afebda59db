package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/sakura-internet/peering-session-controller/pkg/jobs"
)

// State specifies the state of the poll loop.
type State string

const (
	StateInitial State = "Initial"
	StatePolling State = "Polling"
	StateIdle    State = "Idle"
)

// Status is the summary of the poll loop.
type Status struct {
	State              State      `json:"state"`
	LastCycleStarted   *time.Time `json:"last_cycle_started,omitempty"`
	LastCycleCompleted *time.Time `json:"last_cycle_completed,omitempty"`
	// PolledBGPGroups and PolledInternetExchanges count the scopes polled by the last cycle.
	PolledBGPGroups         int          `json:"polled_bgp_groups"`
	PolledInternetExchanges int          `json:"polled_internet_exchanges"`
	Result                  jobs.Status  `json:"result,omitempty"`
	Entries                 []jobs.Entry `json:"entries"`
}

// GetStatus returns the status of the poll loop.
func (c *Controller) GetStatus() Status {
	c.m.RLock()
	defer c.m.RUnlock()

	status := c.status
	status.Entries = append(make([]jobs.Entry, 0, len(c.status.Entries)), c.status.Entries...)
	return status
}

func (c *Controller) setStatus(fn func(s *Status)) {
	c.m.Lock()
	defer c.m.Unlock()

	fn(&c.status)
}

// Start polls the session states every ctrlerLoopInterval until ctx is done.
func (c *Controller) Start(ctx context.Context, ctrlerLoopInterval time.Duration) {
	ticker := time.NewTicker(ctrlerLoopInterval)
	defer ticker.Stop()

	c.setStatus(func(s *Status) { s.State = StateIdle })

controllerLoop:
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("stopping the poll loop")
			break controllerLoop
		case <-ticker.C:
			result := c.RunCycle(ctx)
			if result.Status() == jobs.StatusErrored {
				c.logger.Warn("poll cycle completed with errors", "errors", len(result.Entries()))
			}
		}
	}
}

// RunCycle polls every BGP group and IXP which has the session state check enabled, sequentially.
func (c *Controller) RunCycle(ctx context.Context) *jobs.Result {
	result := jobs.NewResult("poll-session-states")
	result.SetRunning()

	started := c.now()
	c.setStatus(func(s *Status) {
		s.State = StatePolling
		s.LastCycleStarted = &started
	})

	polledGroups := 0
	groups, err := c.store.ListBGPGroups(ctx)
	if err != nil {
		result.MarkErrored(fmt.Sprintf("failed to list bgp groups: %s", err), nil, c.logger)
	}
	for _, group := range groups {
		if !group.CheckBGPSessionStates {
			continue
		}

		polled, err := c.PollBGPGroup(ctx, result, group.ID)
		if err != nil {
			result.MarkErrored(err.Error(), &group, c.logger)
			continue
		}
		if polled {
			polledGroups++
		}
	}

	polledIXPs := 0
	ixps, err := c.store.ListInternetExchanges(ctx)
	if err != nil {
		result.MarkErrored(fmt.Sprintf("failed to list internet exchanges: %s", err), nil, c.logger)
	}
	for _, ixp := range ixps {
		if !ixp.CheckBGPSessionStates {
			continue
		}

		polled, err := c.PollInternetExchange(ctx, result, ixp.ID)
		if err != nil {
			result.MarkErrored(err.Error(), &ixp, c.logger)
			continue
		}
		if polled {
			polledIXPs++
		}
	}

	result.MarkCompleted()

	completed := c.now()
	c.setStatus(func(s *Status) {
		s.State = StateIdle
		s.LastCycleCompleted = &completed
		s.PolledBGPGroups = polledGroups
		s.PolledInternetExchanges = polledIXPs
		s.Result = result.Status()
		s.Entries = result.Entries()
	})
	c.logger.Info("poll cycle completed", "bgp_groups", polledGroups, "internet_exchanges", polledIXPs)

	return result
}

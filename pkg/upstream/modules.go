package upstream

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/privacyshield/sazpd-console/pkg/modules"
	"github.com/privacyshield/sazpd-console/pkg/testsession"
)

// runAcceptedProgress is reported once the run request has been sent and
// again on every heartbeat while it is in flight.
const runAcceptedProgress = 5

// Executors returns a dispatch table that runs every module through
// POST /test/modules/{moduleId}/run. The call carries the engine's context,
// so Stop and the execution budget abort it. The run endpoint answers only
// when the module has finished, so a heartbeat keeps the stall watchdog from
// failing a run that is merely slow.
func (c *Client) Executors() testsession.Dispatch {
	var d testsession.Dispatch
	for i, m := range modules.All() {
		id := m.ID
		d[i] = func(ctx context.Context, progress testsession.ProgressFunc) (testsession.Results, error) {
			progress(runAcceptedProgress)
			stop := c.heartbeat(progress)
			defer stop()

			var res testsession.Results
			path := "/test/modules/" + url.PathEscape(string(id)) + "/run"
			if err := c.do(ctx, GroupModules, http.MethodPost, path, nil, nil, &res); err != nil {
				return testsession.Results{}, err
			}
			return res, nil
		}
	}
	return d
}

// heartbeat reports runAcceptedProgress every RunHeartbeat until the
// returned func is called.
func (c *Client) heartbeat(progress testsession.ProgressFunc) func() {
	if c.cfg.RunHeartbeat <= 0 {
		return func() {}
	}
	done := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(c.cfg.RunHeartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				progress(runAcceptedProgress)
			}
		}
	}()
	return func() {
		close(done)
		<-exited
	}
}

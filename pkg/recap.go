package pkg

import (
	"errors"
	"fmt"
	"time"

	"github.com/AlexanderGrooff/uplaybook/pkg/common"
	"go.uber.org/multierr"
)

// Recap counts task invocations over a run. Counters never decrease.
type Recap struct {
	Total    int
	Changed  int
	Failed   int
	Ignored  int
	hadFatal bool
}

func (rc *Recap) record(res *Result, ignored bool) {
	rc.Total++
	if res.Changed {
		rc.Changed++
	}
	if res.Failed {
		rc.Failed++
		if ignored {
			rc.Ignored++
		} else {
			rc.hadFatal = true
		}
	}
}

// Fatal reports whether a failure that was not ignored was recorded.
func (rc *Recap) Fatal() bool {
	return rc.hadFatal
}

func (rc *Recap) String() string {
	return fmt.Sprintf("*** RECAP:  total=%d changed=%d failure=%d", rc.Total, rc.Changed, rc.Failed)
}

// Finish ends the run: it drains pending handlers, prints the recap and
// exports metrics. runErr is the error the playbook body returned; the result
// combines it with anything that failed while finishing. An exit request with
// code zero counts as success.
func (r *Run) Finish(runErr error) error {
	var exitErr *ExitError
	if errors.As(runErr, &exitErr) && exitErr.Code == 0 {
		runErr = nil
	}

	passes := 1
	if r.Config != nil && r.Config.Handlers.MaxFlushPasses > 0 {
		passes = r.Config.Handlers.MaxFlushPasses
	}
	err := multierr.Append(runErr, r.flushAll(passes))

	r.printf("\n%s\n", r.Recap.String())

	r.metrics.finish(r.Recap)
	if r.Config != nil && r.Config.Metrics.Textfile != "" {
		if werr := r.metrics.writeTextfile(r.Config.Metrics.Textfile); werr != nil {
			common.LogWarn("Failed to write metrics textfile", map[string]interface{}{
				"path":  r.Config.Metrics.Textfile,
				"error": werr.Error(),
			})
		}
	}

	common.LogDebug("Run finished", map[string]interface{}{
		"total":    r.Recap.Total,
		"changed":  r.Recap.Changed,
		"failed":   r.Recap.Failed,
		"duration": time.Since(r.started).String(),
	})
	return err
}

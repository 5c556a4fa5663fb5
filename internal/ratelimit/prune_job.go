package ratelimit

import (
	"time"

	"github.com/rs/zerolog"
)

// DefaultMaxIdle is how long a client bucket may sit unused before it is dropped
const DefaultMaxIdle = time.Hour

// PruneJob drops idle client buckets so the limiter does not grow without bound
type PruneJob struct {
	limiter *Limiter
	maxIdle time.Duration
	log     zerolog.Logger
}

// NewPruneJob creates a new prune job
func NewPruneJob(limiter *Limiter, maxIdle time.Duration, log zerolog.Logger) *PruneJob {
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdle
	}
	return &PruneJob{
		limiter: limiter,
		maxIdle: maxIdle,
		log:     log.With().Str("job", "ratelimit_prune").Logger(),
	}
}

// Name returns the job name
func (j *PruneJob) Name() string {
	return "ratelimit_prune"
}

// Run removes idle buckets
func (j *PruneJob) Run() error {
	if removed := j.limiter.Prune(j.maxIdle); removed > 0 {
		j.log.Debug().Int("removed", removed).Msg("Pruned idle rate limit buckets")
	}
	return nil
}

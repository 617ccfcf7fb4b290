package queue

import (
	"github.com/finsight/analysis-orchestrator/internal/domain"
	"github.com/google/uuid"
)

// pendingIndex is the in-memory view of jobs waiting to run, kept in three
// FIFO bands, one per priority. Within a band jobs are ordered by creation
// time so a re-enqueued retry slots back in ahead of younger work. The index
// is not safe for concurrent use; the Manager's mutex guards it.
type pendingIndex struct {
	bands [3][]*domain.AnalysisJob
	byID  map[uuid.UUID]struct{}
}

func newPendingIndex() *pendingIndex {
	return &pendingIndex{
		byID: make(map[uuid.UUID]struct{}),
	}
}

// add inserts the job into its priority band, ordered by CreatedAt.
// Adding an id that is already indexed is a no-op and returns false.
func (p *pendingIndex) add(job *domain.AnalysisJob) bool {
	if _, ok := p.byID[job.ID]; ok {
		return false
	}

	band := domain.PriorityRank(job.Priority)
	jobs := p.bands[band]

	// Insert before the first job created later; jobs usually arrive in
	// creation order, so scanning from the back ends quickly.
	pos := len(jobs)
	for pos > 0 && jobs[pos-1].CreatedAt.After(job.CreatedAt) {
		pos--
	}
	jobs = append(jobs, nil)
	copy(jobs[pos+1:], jobs[pos:])
	jobs[pos] = job
	p.bands[band] = jobs

	p.byID[job.ID] = struct{}{}
	return true
}

// pop removes and returns the next job in dispatch order: highest priority
// band first, oldest creation time within a band. Returns nil when empty.
func (p *pendingIndex) pop() *domain.AnalysisJob {
	for band := range p.bands {
		if len(p.bands[band]) == 0 {
			continue
		}
		job := p.bands[band][0]
		p.bands[band] = p.bands[band][1:]
		delete(p.byID, job.ID)
		return job
	}
	return nil
}

// remove drops the job with the given id from the index, returning the
// removed job or nil if it was not indexed.
func (p *pendingIndex) remove(id uuid.UUID) *domain.AnalysisJob {
	if _, ok := p.byID[id]; !ok {
		return nil
	}
	for band := range p.bands {
		for i, job := range p.bands[band] {
			if job.ID == id {
				p.bands[band] = append(p.bands[band][:i], p.bands[band][i+1:]...)
				delete(p.byID, id)
				return job
			}
		}
	}
	return nil
}

// contains reports whether the id is indexed.
func (p *pendingIndex) contains(id uuid.UUID) bool {
	_, ok := p.byID[id]
	return ok
}

// len returns the number of indexed jobs.
func (p *pendingIndex) len() int {
	return len(p.byID)
}

// snapshot returns all indexed jobs in dispatch order.
func (p *pendingIndex) snapshot() []*domain.AnalysisJob {
	out := make([]*domain.AnalysisJob, 0, p.len())
	for band := range p.bands {
		out = append(out, p.bands[band]...)
	}
	return out
}

package store

import (
	"basegraph.app/radar/core/db"
)

type Stores struct {
	q db.Querier
}

func NewStores(q db.Querier) *Stores {
	return &Stores{q: q}
}

func (s *Stores) Runs() RunStore {
	return newPipelineRunStore(s.q)
}

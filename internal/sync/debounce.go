package sync

import (
	"context"
	stdsync "sync"
	"time"

	"driftboard/internal/model"
)

// Pusher batches rapid local mutations into one push. Notify marks an
// entity dirty and (re)arms the timer; when it fires the freshest local
// copies of every dirty entity go out in one request per entity type.
type Pusher struct {
	co       *Coordinator
	debounce time.Duration

	mu      stdsync.Mutex
	timer   *time.Timer
	pending map[string]model.EntityType // entity id -> type
	running bool
}

func NewPusher(co *Coordinator, debounce time.Duration) *Pusher {
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	return &Pusher{
		co:       co,
		debounce: debounce,
		pending:  map[string]model.EntityType{},
	}
}

func (p *Pusher) Notify(entity model.EntityType, id string) {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.pending[id] = entity
	if p.timer == nil {
		p.timer = time.AfterFunc(p.debounce, p.onTimer)
		p.mu.Unlock()
		return
	}
	p.timer.Reset(p.debounce)
	p.mu.Unlock()
}

func (p *Pusher) onTimer() {
	p.mu.Lock()
	if p.running {
		// A flush is in flight; fire again to pick up the new batch.
		if p.timer != nil {
			p.timer.Reset(p.debounce)
		}
		p.mu.Unlock()
		return
	}
	if len(p.pending) == 0 {
		p.mu.Unlock()
		return
	}
	p.running = true
	batch := p.pending
	p.pending = map[string]model.EntityType{}
	p.mu.Unlock()

	p.flush(context.Background(), batch)

	p.mu.Lock()
	p.running = false
	if len(p.pending) > 0 && p.timer != nil {
		p.timer.Reset(p.debounce)
	}
	p.mu.Unlock()
}

// Flush pushes everything dirty right now, bypassing the timer. Used on
// shutdown and by the explicit sync command.
func (p *Pusher) Flush(ctx context.Context) {
	p.mu.Lock()
	batch := p.pending
	p.pending = map[string]model.EntityType{}
	p.mu.Unlock()
	p.flush(ctx, batch)
}

func (p *Pusher) flush(ctx context.Context, batch map[string]model.EntityType) {
	var tasks []model.Task
	for id, entity := range batch {
		switch entity {
		case model.EntityTask:
			if t, ok := p.co.st.Task(id); ok {
				tasks = append(tasks, t)
			}
		case model.EntityConnection:
			if cn, ok := p.co.st.Connection(id); ok {
				p.co.PushConnection(ctx, cn)
			}
		case model.EntityProject:
			if pr, ok := p.co.st.Project(id); ok {
				p.co.PushProject(ctx, pr)
			}
		case model.EntityPreference:
			if pref, ok := p.co.st.PreferenceByProject(id); ok {
				p.co.PushPreference(ctx, pref)
			}
		}
	}
	p.co.PushTasks(ctx, tasks)
}

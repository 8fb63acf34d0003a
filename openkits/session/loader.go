package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/df-mc/dragonfly/server/player"
	"github.com/df-mc/dragonfly/server/world"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/locale"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/perm"
)

const (
	// loadQueueSize is the number of loads that may wait for a worker.
	loadQueueSize = 50
	// loadConcurrency is the number of roles fetched at once.
	loadConcurrency = 3
	// loadTimeout bounds the fetch of the roles of a player, retries included.
	loadTimeout = 15 * time.Second
)

// loadRequest is a queued load of the permissions of a player.
type loadRequest struct {
	xuid   string
	handle *world.EntityHandle
	perms  *Permissions
}

// Loader resolves the permissions of players in the background, fetching their roles from a
// RoleSource. With no RoleSource every player gets the default group.
type Loader struct {
	log    *slog.Logger
	roles  perm.RoleSource
	groups perm.Groups

	queue    chan loadRequest
	shutdown chan struct{}
	once     sync.Once
	wg       sync.WaitGroup
}

// NewLoader returns a Loader and starts its worker.
func NewLoader(log *slog.Logger, roles perm.RoleSource, groups perm.Groups) *Loader {
	l := &Loader{
		log:      log,
		roles:    roles,
		groups:   groups,
		queue:    make(chan loadRequest, loadQueueSize),
		shutdown: make(chan struct{}),
	}
	l.wg.Add(1)
	go l.worker()
	return l
}

// Groups returns the groups permissions are resolved from.
func (l *Loader) Groups() perm.Groups {
	return l.groups
}

// Queue queues a load of the permissions of a player. The player is told through handle, which may be
// nil, once their roles were synced. It returns false if the queue is full.
func (l *Loader) Queue(xuid string, perms *Permissions, handle *world.EntityHandle) bool {
	select {
	case <-l.shutdown:
		return false
	default:
	}
	select {
	case l.queue <- loadRequest{xuid: xuid, handle: handle, perms: perms}:
		return true
	default:
		tip(handle, locale.Translate("perm.queue.full"))
		return false
	}
}

// worker runs queued loads, at most loadConcurrency at a time.
func (l *Loader) worker() {
	defer l.wg.Done()
	semaphore := make(chan struct{}, loadConcurrency)
	for {
		select {
		case <-l.shutdown:
			return
		case req := <-l.queue:
			semaphore <- struct{}{}
			l.wg.Add(1)
			go func() {
				defer func() {
					<-semaphore
					l.wg.Done()
				}()
				l.load(req)
			}()
		}
	}
}

// load fetches the roles of a player and resolves their permissions.
func (l *Loader) load(req loadRequest) {
	if l.roles == nil {
		req.perms.Set(l.groups.Resolve(nil))
		req.perms.SetLastFetch(time.Now())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	roles, err := l.roles.RolesOfXUID(ctx, req.xuid)
	if err != nil {
		l.log.Warn("failed to fetch roles", "xuid", req.xuid, "error", err)
		req.perms.Set(l.groups.Resolve(nil))
		tip(req.handle, locale.Translate(perm.Message(err)))
		return
	}
	set, groups := l.groups.Resolve(roles)
	req.perms.Set(set, groups)
	req.perms.SetLastFetch(time.Now())
	tip(req.handle, locale.Translate("perm.synced", groups[len(groups)-1]))
}

// Stop stops the worker and waits for running loads to finish. Queued loads are dropped.
func (l *Loader) Stop() {
	l.once.Do(func() {
		close(l.shutdown)
	})
	l.wg.Wait()
}

// tip sends a tip and a message to the player behind handle, if it is still in a world.
func tip(handle *world.EntityHandle, msg string) {
	if handle == nil {
		return
	}
	handle.ExecWorld(func(_ *world.Tx, e world.Entity) {
		if p, ok := e.(*player.Player); ok {
			p.SendTip(msg)
			p.Message(msg)
		}
	})
}

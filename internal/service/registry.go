package service

import (
	"sync"

	"github.com/Akirayouky/verifiche-condominiali-sub001/internal/model"
)

type subscription struct {
	deliver func(model.Notification)
}

// registry maps a user id to its single live subscription. It is local to
// the process: subscribers connected to another instance are not reached.
type registry struct {
	subs sync.Map
}

func (r *registry) subscribe(userID string, deliver func(model.Notification)) func() {
	sub := &subscription{deliver: deliver}
	r.subs.Store(userID, sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			// a newer subscription for the same user stays in place
			r.subs.CompareAndDelete(userID, sub)
		})
	}
}

func (r *registry) lookup(userID string) (*subscription, bool) {
	val, ok := r.subs.Load(userID)
	if !ok {
		return nil, false
	}

	sub, ok := val.(*subscription)
	return sub, ok
}

func (r *registry) len() int {
	n := 0
	r.subs.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

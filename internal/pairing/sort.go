package pairing

import (
	"sort"

	"github.com/nextlevelbuilder/groupclaw/internal/store"
)

func sortPending(ps []store.PendingUser) {
	sort.Slice(ps, func(i, j int) bool {
		if !ps[i].RequestedAt.Equal(ps[j].RequestedAt) {
			return ps[i].RequestedAt.Before(ps[j].RequestedAt)
		}
		return ps[i].UserID < ps[j].UserID
	})
}

package feed

import (
	"fmt"
	"sort"

	"github.com/sileric/mbwatch/internal/scope"
)

// ChannelsFor builds the channel filter set for the enabled topics and
// resolved scope: one world-scoped channel per topic per world, or the
// bare topics when no worlds resolved (the feed then sends everything).
func ChannelsFor(settings Settings, resolved []scope.Resolved) []string {
	var topics []string
	if settings.ListingsAdd {
		topics = append(topics, eventListingsAdd)
	}
	if settings.ListingsRemove {
		topics = append(topics, eventListingsRemove)
	}
	if settings.SalesAdd {
		topics = append(topics, eventSalesAdd)
	}

	worldSet := make(map[int]struct{})
	for _, r := range resolved {
		for _, id := range r.WorldIDs {
			worldSet[id] = struct{}{}
		}
	}

	if len(worldSet) == 0 {
		return topics
	}

	worlds := make([]int, 0, len(worldSet))
	for id := range worldSet {
		worlds = append(worlds, id)
	}
	sort.Ints(worlds)

	out := make([]string, 0, len(topics)*len(worlds))
	for _, topic := range topics {
		for _, id := range worlds {
			out = append(out, fmt.Sprintf("%s{world=%d}", topic, id))
		}
	}
	return out
}

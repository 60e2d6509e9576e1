package feed

import (
	"time"

	"github.com/sileric/mbwatch/internal/wire"
)

// Kind classifies a decoded feed frame. The closed set lets dispatch be
// exhaustive instead of re-comparing event-name strings everywhere.
type Kind int

const (
	KindUnknown Kind = iota
	KindListingsAdd
	KindListingsRemove
	KindSalesAdd
)

// Wire event names as the feed sends them.
const (
	eventListingsAdd    = "listings/add"
	eventListingsRemove = "listings/remove"
	eventSalesAdd       = "sales/add"
)

func kindFromEventName(name string) Kind {
	switch name {
	case eventListingsAdd:
		return KindListingsAdd
	case eventListingsRemove:
		return KindListingsRemove
	case eventSalesAdd:
		return KindSalesAdd
	}
	return KindUnknown
}

func (k Kind) String() string {
	switch k {
	case KindListingsAdd:
		return eventListingsAdd
	case KindListingsRemove:
		return eventListingsRemove
	case KindSalesAdd:
		return eventSalesAdd
	}
	return "unknown"
}

// Event is one normalized price-feed record: a single listing delta or
// sale, flattened out of a wire frame.
type Event struct {
	Kind         Kind      `json:"kind"`
	ItemID       int       `json:"itemID"`
	WorldID      int       `json:"worldID"`
	WorldName    string    `json:"worldName,omitempty"`
	PricePerUnit int       `json:"pricePerUnit"`
	Quantity     int       `json:"quantity"`
	HQ           bool      `json:"hq"`
	Total        int       `json:"total"`
	RetainerName string    `json:"retainerName,omitempty"`
	BuyerName    string    `json:"buyerName,omitempty"`
	ReceivedAt   time.Time `json:"receivedAt"`
}

// MarshalJSON-friendly kind name for the status endpoint.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// eventsFromDoc flattens a decoded frame into individual events. Frames
// carry either an array of listing/sale records or, for single-record
// deltas, the fields at top level. A frame whose event name is not one
// of ours yields no events.
func eventsFromDoc(doc *wire.Doc, now time.Time) []Event {
	kind := kindFromEventName(doc.String("event"))
	if kind == KindUnknown {
		return nil
	}

	base := Event{
		Kind:       kind,
		WorldName:  doc.String("worldName"),
		ReceivedAt: now,
	}
	if v, ok := doc.Int("item"); ok {
		base.ItemID = int(v)
	}
	if v, ok := doc.Int("world"); ok {
		base.WorldID = int(v)
	}

	records, ok := doc.Array(recordsField(kind))
	if !ok {
		// Single-record frame: price fields live at top level.
		e := base
		fillRecord(&e, doc)
		return []Event{e}
	}

	// Events are published as decoded, price or no price; removal
	// records legitimately carry none. The cache fold applies its own
	// positive-price guard.
	out := make([]Event, 0, len(records))
	for _, rec := range records {
		sub, ok := rec.(*wire.Doc)
		if !ok {
			continue
		}
		e := base
		fillRecord(&e, sub)
		out = append(out, e)
	}
	return out
}

func recordsField(k Kind) string {
	if k == KindSalesAdd {
		return "sales"
	}
	return "listings"
}

func fillRecord(e *Event, doc *wire.Doc) {
	if v, ok := doc.Int("pricePerUnit"); ok {
		e.PricePerUnit = int(v)
	}
	if v, ok := doc.Int("quantity"); ok {
		e.Quantity = int(v)
	}
	if v, ok := doc.Int("total"); ok {
		e.Total = int(v)
	}
	e.HQ = doc.Bool("hq")
	if s := doc.String("retainerName"); s != "" {
		e.RetainerName = s
	}
	if s := doc.String("buyerName"); s != "" {
		e.BuyerName = s
	}
	// Per-record world overrides the frame-level one on cross-world
	// channels.
	if v, ok := doc.Int("world"); ok {
		e.WorldID = int(v)
	}
}

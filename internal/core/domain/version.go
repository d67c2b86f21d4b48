package domain

// Version is the optimistic locking stamp carried by every mutable aggregate.
// A stored aggregate starts at 1 and each committed write increments it.
type Version int64

const InitialVersion Version = 1

func (v Version) Next() Version { return v + 1 }

// Check compares a caller supplied version with the one last read. Zero
// means the caller did not assert a version.
func (v Version) Check(entity, id string, expected Version) error {
	if expected != 0 && expected != v {
		return &ConcurrencyConflictError{Entity: entity, ID: id, Expected: expected, Current: v}
	}
	return nil
}

const (
	EntityProduct   = "product"
	EntityClock     = "auction_clock"
	EntityOrder     = "order"
	EntityOrderLine = "order_line"
)

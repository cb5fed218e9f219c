package livestorage

// Change is delivered to listeners. A live change carries the old and new
// values; HasNew is false for a removal. A load-time change only carries
// Value and sets Load.
type Change struct {
	Key      string
	Area     Area
	OldValue any
	NewValue any
	Value    any
	HasOld   bool
	HasNew   bool
	Load     bool
}

// Removed reports whether the change deleted its key.
func (c Change) Removed() bool {
	return !c.Load && !c.HasNew
}

// KeyChange is one entry of a host change notification.
type KeyChange struct {
	Key      string
	OldValue any
	NewValue any
	HasOld   bool
	HasNew   bool
}

// ChangeBatch is an ordered host change notification for a single area.
type ChangeBatch []KeyChange

func (kc KeyChange) toChange(area Area) Change {
	change := Change{
		Key:      kc.Key,
		Area:     area,
		OldValue: kc.OldValue,
		HasOld:   kc.HasOld,
		HasNew:   kc.HasNew,
	}
	if kc.HasNew {
		change.NewValue = kc.NewValue
		change.Value = kc.NewValue
	}
	return change
}

package notes

// Changeset is the difference between the stored and the remote state.
// Key sets of New, Update and Delete never overlap, except for moved notes
// which appear in both Delete (old location) and New (new location).
type Changeset struct {
	New    map[Key]Metadata
	Update map[Key]Metadata
	Delete map[Key]Metadata
}

// Empty reports whether there is nothing to apply.
func (c Changeset) Empty() bool {
	return len(c.New) == 0 && len(c.Update) == 0 && len(c.Delete) == 0
}

// Targets returns the notes which have to be fetched: New and Update merged.
func (c Changeset) Targets() map[Key]Metadata {
	out := make(map[Key]Metadata, len(c.New)+len(c.Update))
	for k, m := range c.New {
		out[k] = m
	}
	for k, m := range c.Update {
		out[k] = m
	}
	return out
}

// CalculateChanges compares the remote metadata against the stored one.
//
// A note that changed its display path is treated as deleted at the old
// location and created at the new one, even when its version is unchanged.
// With force set, every note present on both sides is updated.
func CalculateChanges(remote, local map[Key]Metadata, force bool) Changeset {
	cs := Changeset{
		New:    make(map[Key]Metadata),
		Update: make(map[Key]Metadata),
		Delete: make(map[Key]Metadata),
	}

	deleted := make(map[Key]struct{}, len(local))
	for k := range local {
		deleted[k] = struct{}{}
	}

	for k, newMeta := range remote {
		oldMeta, ok := local[k]
		if !ok {
			cs.New[k] = newMeta
			continue
		}
		delete(deleted, k)

		switch {
		case oldMeta.Moved(newMeta):
			cs.Delete[k] = oldMeta
			cs.New[k] = newMeta
		case force || oldMeta.Version != newMeta.Version:
			cs.Update[k] = newMeta
		}
	}

	for k := range deleted {
		cs.Delete[k] = local[k]
	}
	return cs
}

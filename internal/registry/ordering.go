package registry

// Admit is the Ordering Guard. It decides whether a self-report carrying
// token is newer than the last one accepted for the record.
//
//   - nil record: accept (first contact bootstraps LastSequence)
//   - unset LastSequence: accept (entities that pre-date ordering)
//   - otherwise: accept iff token > LastSequence; ties are rejected
//
// The token is trusted as given by the delivery layer. Admit never mutates.
func Admit(record *EntityRecord, token int64) error {
	if record == nil || record.LastSequence == nil {
		return nil
	}
	if token > *record.LastSequence {
		return nil
	}
	return newError(ErrCodeStaleUpdate, record.EntityID,
		"reference %d is not newer than last accepted %d", token, *record.LastSequence)
}

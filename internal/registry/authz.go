package registry

import "github.com/roach88/aclreg/internal/wire"

// IsAuthorized is the Authorization Engine: a pure predicate over the
// action, the target entity, the caller and the current record.
//
// Sender authenticity (that a State-Notice really came from entityID) is the
// delivery layer's guarantee and is not checked here.
func IsAuthorized(action, entityID, caller string, record *EntityRecord, id Identity) bool {
	switch action {
	case wire.ActionRegister,
		wire.ActionStateNotice,
		wire.ActionAccessControlList,
		wire.ActionGetEntities,
		wire.ActionGetVersions:
		return true

	case wire.ActionUnregister:
		if caller == "" {
			return false
		}
		return caller == entityID ||
			caller == id.Owner ||
			caller == id.ID ||
			(record != nil && caller == record.OwnerAddress())

	case wire.ActionBatchUnregister,
		wire.ActionAddVersion,
		wire.ActionRemoveVersion:
		return caller != "" && caller == id.Owner

	default:
		return false
	}
}

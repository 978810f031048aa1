package wire

// Inbound action labels.
const (
	ActionRegister          = "Register"
	ActionStateNotice       = "State-Notice"
	ActionUnregister        = "Unregister"
	ActionBatchUnregister   = "Batch-Unregister"
	ActionAccessControlList = "Access-Control-List"
	ActionGetEntities       = "Get-Entities"
	ActionAddVersion        = "Add-Version"
	ActionRemoveVersion     = "Remove-Version"
	ActionGetVersions       = "Get-Versions"
)

// Outbound notice labels.
const (
	ActionState                        = "State"
	ActionRegisterNotice               = "Register-Notice"
	ActionInvalidRegisterNotice        = "Invalid-Register-Notice"
	ActionInvalidStateNoticeNotice     = "Invalid-State-Notice-Notice"
	ActionUnregisterNotice             = "Unregister-Notice"
	ActionInvalidUnregisterNotice      = "Invalid-Unregister-Notice"
	ActionBatchUnregisterNotice        = "Batch-Unregister-Notice"
	ActionInvalidBatchUnregisterNotice = "Invalid-Batch-Unregister-Notice"
	ActionAccessControlListNotice      = "Access-Control-List-Notice"
	ActionGetEntitiesNotice            = "Get-Entities-Notice"
	ActionAddVersionNotice             = "Add-Version-Notice"
	ActionRemoveVersionNotice          = "Remove-Version-Notice"
	ActionGetVersionsNotice            = "Get-Versions-Notice"
	ActionACLPatch                     = "ACL-Patch"
)

// Tag names.
const (
	TagAction      = "Action"
	TagProcessID   = "Process-Id"
	TagAddress     = "Address"
	TagModuleID    = "Module-Id"
	TagSourceID    = "Source-Id"
	TagLuaSourceID = "Lua-Source-Id" // accepted alias of Source-Id
	TagVersion     = "Version"
	TagNotes       = "Notes"
	TagError       = "Error"
	TagDevice      = "device"
)

// PatchDevice marks notices consumed by the external ACL consistency layer.
const PatchDevice = "patch@1.0"

// Package connect provides Connect RPC service implementations.
//
// Messages are google.protobuf.Struct and google.protobuf.Empty, so no
// generated code is required; request structs are decoded from the Struct.
package connect

// Service names.
const (
	HostServiceName   = "trackd.v1.HostService"
	PlayerServiceName = "trackd.v1.PlayerService"
	EventServiceName  = "trackd.v1.EventService"
)

// Procedure paths.
const (
	HostStartCommandProcedure = "/" + HostServiceName + "/StartCommand"
	HostBindProcedure         = "/" + HostServiceName + "/Bind"
	HostDestroyProcedure      = "/" + HostServiceName + "/Destroy"
	HostTaskRemovedProcedure  = "/" + HostServiceName + "/TaskRemoved"

	PlayerAddProcedure           = "/" + PlayerServiceName + "/Add"
	PlayerPlayProcedure          = "/" + PlayerServiceName + "/Play"
	PlayerPauseProcedure         = "/" + PlayerServiceName + "/Pause"
	PlayerStopProcedure          = "/" + PlayerServiceName + "/Stop"
	PlayerSkipProcedure          = "/" + PlayerServiceName + "/Skip"
	PlayerPreviousProcedure      = "/" + PlayerServiceName + "/Previous"
	PlayerUpdateOptionsProcedure = "/" + PlayerServiceName + "/UpdateOptions"
	PlayerGetStateProcedure      = "/" + PlayerServiceName + "/GetState"

	EventSubscribeProcedure = "/" + EventServiceName + "/Subscribe"
)

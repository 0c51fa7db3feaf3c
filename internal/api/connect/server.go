package connect

import (
	"net/http"

	"connectrpc.com/connect"
)

// Services holds the handlers served by NewHandler.
type Services struct {
	Host   *HostService
	Player *PlayerService
	Event  *EventService
}

// NewHandler registers every procedure on a mux. Every procedure is guarded
// by the token interceptor.
func NewHandler(services Services, token string) http.Handler {
	opts := connect.WithInterceptors(NewAuthInterceptor(token))
	mux := http.NewServeMux()

	host := services.Host
	mux.Handle(HostStartCommandProcedure, connect.NewUnaryHandler(HostStartCommandProcedure, host.StartCommand, opts))
	mux.Handle(HostBindProcedure, connect.NewUnaryHandler(HostBindProcedure, host.Bind, opts))
	mux.Handle(HostDestroyProcedure, connect.NewUnaryHandler(HostDestroyProcedure, host.Destroy, opts))
	mux.Handle(HostTaskRemovedProcedure, connect.NewUnaryHandler(HostTaskRemovedProcedure, host.TaskRemoved, opts))

	player := services.Player
	mux.Handle(PlayerAddProcedure, connect.NewUnaryHandler(PlayerAddProcedure, player.Add, opts))
	mux.Handle(PlayerPlayProcedure, connect.NewUnaryHandler(PlayerPlayProcedure, player.Play, opts))
	mux.Handle(PlayerPauseProcedure, connect.NewUnaryHandler(PlayerPauseProcedure, player.Pause, opts))
	mux.Handle(PlayerStopProcedure, connect.NewUnaryHandler(PlayerStopProcedure, player.Stop, opts))
	mux.Handle(PlayerSkipProcedure, connect.NewUnaryHandler(PlayerSkipProcedure, player.Skip, opts))
	mux.Handle(PlayerPreviousProcedure, connect.NewUnaryHandler(PlayerPreviousProcedure, player.Previous, opts))
	mux.Handle(PlayerUpdateOptionsProcedure, connect.NewUnaryHandler(PlayerUpdateOptionsProcedure, player.UpdateOptions, opts))
	mux.Handle(PlayerGetStateProcedure, connect.NewUnaryHandler(PlayerGetStateProcedure, player.GetState, opts))

	mux.Handle(EventSubscribeProcedure, connect.NewServerStreamHandler(EventSubscribeProcedure, services.Event.Subscribe, opts))

	return mux
}

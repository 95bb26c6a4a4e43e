package app

// dispatch handles one command and returns true if the worker is to stop.
func (en *engine) dispatch(cmd Command) (stop bool) {
	log.T.F("command %s", cmd.Type())
	switch c := cmd.(type) {
	case *Init:
		en.out.Emit(NewReady())
	case *Subscribe:
		en.subscribe(c)
	case *Unsubscribe:
		en.unsubscribe(c.ID)
	case *Publish:
		en.publish(c)
	case *GetRelayStatus:
		en.relayStatus(c.ID)
	case *AddRelay:
		en.addRelay(c.URL)
	case *RemoveRelay:
		en.removeRelay(c.URL)
	case *ConnectRelay:
		en.connectRelay(c.URL)
	case *DisconnectRelay:
		en.disconnectRelay(c.URL)
	case *ReconnectDisconnected:
		en.reconnectDisconnected(c.Reason)
	case *GetStats:
		en.out.Emit(NewStatsMsg(c.ID, en.stats.Snapshot()))
	case *Sync:
		en.sync(c)
	case *Close:
		log.I.Ln("close command received")
		return true
	default:
		log.E.F("no handler for command %T", cmd)
	}
	return
}

package core

// Hub is the transport's addressing surface: one connection or a named group.
type Hub interface {
	Send(sid SessionID, event string, payload any)
	JoinGroup(sid SessionID, group string)
	LeaveGroup(sid SessionID, group string)
	// Broadcast delivers to every connection currently in group except the listed ones.
	Broadcast(group string, event string, payload any, except ...SessionID)
	// Members lists the connections currently in group.
	Members(group string) []SessionID
}

package models

type Actor string

const (
	ActorClient Actor = "client"
	ActorVendor Actor = "vendor"
	ActorSystem Actor = "system"
	ActorAdmin  Actor = "admin"
)

// Principal is the authenticated caller of an operation. ID is the client id, a raw
// vendor reference, or empty for system and admin callers.
type Principal struct {
	Role Actor
	ID   string
}

func (a Actor) Valid() bool {
	switch a {
	case ActorClient, ActorVendor, ActorSystem, ActorAdmin:
		return true
	}
	return false
}

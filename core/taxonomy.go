package core

// Domain identifies the functional area an event belongs to. Use one of the
// predeclared domains, or CustomDomain for areas the catalog doesn't cover.
// The zero value renders as "unknown".
type Domain struct {
	name string
}

// Predeclared domains.
var (
	DomainLifecycle = Domain{name: "lifecycle"}
	DomainAuth      = Domain{name: "auth"}
	DomainNetwork   = Domain{name: "network"}
	DomainDatabase  = Domain{name: "database"}
	DomainStorage   = Domain{name: "storage"}
	DomainUI        = Domain{name: "ui"}
	DomainConfig    = Domain{name: "config"}
	DomainPayment   = Domain{name: "payment"}
)

// CustomDomain returns a domain outside the predeclared catalog.
func CustomDomain(name string) Domain {
	return Domain{name: name}
}

// Name returns the domain's identifier.
func (d Domain) Name() string {
	if d.name == "" {
		return "unknown"
	}
	return d.name
}

// String returns the domain's identifier.
func (d Domain) String() string {
	return d.Name()
}

// Action identifies what happened within a domain. Use one of the
// predeclared actions, or CustomAction for verbs the catalog doesn't cover.
// The zero value renders as "unknown".
type Action struct {
	name string
}

// Predeclared actions.
var (
	ActionStart   = Action{name: "start"}
	ActionStop    = Action{name: "stop"}
	ActionCreate  = Action{name: "create"}
	ActionRead    = Action{name: "read"}
	ActionUpdate  = Action{name: "update"}
	ActionDelete  = Action{name: "delete"}
	ActionOpen    = Action{name: "open"}
	ActionClose   = Action{name: "close"}
	ActionSubmit  = Action{name: "submit"}
	ActionCancel  = Action{name: "cancel"}
	ActionSucceed = Action{name: "succeed"}
	ActionFail    = Action{name: "fail"}
	ActionChange  = Action{name: "change"}
)

// CustomAction returns an action outside the predeclared catalog.
func CustomAction(name string) Action {
	return Action{name: name}
}

// Name returns the action's identifier.
func (a Action) Name() string {
	if a.name == "" {
		return "unknown"
	}
	return a.name
}

// String returns the action's identifier.
func (a Action) String() string {
	return a.Name()
}

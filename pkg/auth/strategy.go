package auth

import "fmt"

// Strategy is the login strategy an instance requires
type Strategy int

// Login strategies
const (
	// StrategyForm logs in through the console's username/password form
	StrategyForm Strategy = iota + 1

	// StrategyFederated exchanges AWS credentials for a federation token
	StrategyFederated
)

func (s Strategy) String() string {
	switch s {
	case StrategyForm:
		return "Form"
	case StrategyFederated:
		return "Federated"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// LoginMethod carries the strategy-specific inputs of a login. It is
// implemented by FormLogin and FederatedLogin only.
type LoginMethod interface {
	Strategy() Strategy
	sealed()
}

// FormLogin holds the credentials for a form login
type FormLogin struct {
	Username string
	Password string
}

// Strategy implements LoginMethod
func (FormLogin) Strategy() Strategy { return StrategyForm }
func (FormLogin) sealed()            {}

// FederatedLogin holds the instance id for a federated login
type FederatedLogin struct {
	InstanceID string
}

// Strategy implements LoginMethod
func (FederatedLogin) Strategy() Strategy { return StrategyFederated }
func (FederatedLogin) sealed()            {}

// Instance identifies the instance a run works on
type Instance struct {
	// Alias is the console subdomain
	Alias string

	// ID is the instance id, needed by federated logins only
	ID string
}

// LoginFor returns the federated login of the instance, or nil when the
// strategy needs operator credentials instead
func (i Instance) LoginFor(strategy Strategy) LoginMethod {
	if strategy == StrategyFederated {
		return FederatedLogin{InstanceID: i.ID}
	}
	return nil
}

// Session is an authenticated console session. The token is never written
// to disk.
type Session struct {
	Alias    string
	Token    string
	Strategy Strategy
}

// Valid reports whether the session carries a token
func (s *Session) Valid() bool {
	return s != nil && s.Token != ""
}

// String hides the token
func (s Session) String() string {
	return fmt.Sprintf("Session{alias=%s strategy=%s}", s.Alias, s.Strategy)
}

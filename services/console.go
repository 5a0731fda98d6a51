package services

import "github.com/devgrupoglobalsoft/apiexec"

// Console bundles every service over one executor, so they share the
// session and the response cache.
type Console struct {
	Auth         *Auth
	Licenses     *Licenses
	Applications *Applications
	Modules      *Modules
	Users        *Users
	Profiles     *Profiles
	Clients      *Clients
}

func New(exec *apiexec.Executor) *Console {
	return &Console{
		Auth:         NewAuth(exec),
		Licenses:     NewLicenses(exec),
		Applications: NewApplications(exec),
		Modules:      NewModules(exec),
		Users:        NewUsers(exec),
		Profiles:     NewProfiles(exec),
		Clients:      NewClients(exec),
	}
}

// Resources maps collection names, as used on the command line, to their
// path.
func Resources() map[string]string {
	return map[string]string{
		"licenses":     LicensesPath,
		"applications": ApplicationsPath,
		"modules":      ModulesPath,
		"users":        UsersPath,
		"profiles":     ProfilesPath,
		"clients":      ClientsPath,
	}
}

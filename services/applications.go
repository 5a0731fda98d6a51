package services

import "github.com/devgrupoglobalsoft/apiexec"

const ApplicationsPath = "/api/aplicacoes"

type Application struct {
	ID        string `json:"id"`
	Nome      string `json:"nome"`
	Descricao string `json:"descricao,omitempty"`
	Versao    string `json:"versao,omitempty"`
	Ativo     bool   `json:"ativo"`
}

type ApplicationInput struct {
	Nome      string `json:"nome"`
	Descricao string `json:"descricao,omitempty"`
	Versao    string `json:"versao,omitempty"`
	Ativo     bool   `json:"ativo"`
}

type Applications struct {
	*Resource[Application, ApplicationInput]
}

// NewApplications binds the applications collection. Licenses and modules
// show the application name, so both are invalidated on writes.
func NewApplications(exec *apiexec.Executor) *Applications {
	return &Applications{NewResource[Application, ApplicationInput](exec, ApplicationsPath, "licencas", "modulos")}
}

package services

import "github.com/devgrupoglobalsoft/apiexec"

const ClientsPath = "/api/clientes"

type Client struct {
	ID       string `json:"id"`
	Nome     string `json:"nome"`
	NIF      string `json:"nif,omitempty"`
	Email    string `json:"email,omitempty"`
	Telefone string `json:"telefone,omitempty"`
	Morada   string `json:"morada,omitempty"`
	Licencas int    `json:"numeroLicencas"`
	Ativo    bool   `json:"ativo"`
}

type ClientInput struct {
	Nome     string `json:"nome"`
	NIF      string `json:"nif,omitempty"`
	Email    string `json:"email,omitempty"`
	Telefone string `json:"telefone,omitempty"`
	Morada   string `json:"morada,omitempty"`
	Ativo    bool   `json:"ativo"`
}

type Clients struct {
	*Resource[Client, ClientInput]
}

// NewClients binds the clients collection; licenses and users show the
// client name.
func NewClients(exec *apiexec.Executor) *Clients {
	return &Clients{NewResource[Client, ClientInput](exec, ClientsPath, "licencas", "utilizadores")}
}

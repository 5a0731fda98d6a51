package services

import (
	"context"
	"net/url"

	"github.com/devgrupoglobalsoft/apiexec"
)

const ModulesPath = "/api/modulos"

type Module struct {
	ID          string `json:"id"`
	Nome        string `json:"nome"`
	AplicacaoID string `json:"aplicacaoId"`
	Descricao   string `json:"descricao,omitempty"`
	Ativo       bool   `json:"ativo"`
}

type ModuleInput struct {
	Nome        string `json:"nome"`
	AplicacaoID string `json:"aplicacaoId"`
	Descricao   string `json:"descricao,omitempty"`
	Ativo       bool   `json:"ativo"`
}

type Modules struct {
	*Resource[Module, ModuleInput]
}

func NewModules(exec *apiexec.Executor) *Modules {
	return &Modules{NewResource[Module, ModuleInput](exec, ModulesPath, "aplicacoes", "perfis")}
}

// ByApplication lists the modules of one application.
func (m *Modules) ByApplication(ctx context.Context, applicationID string) (*apiexec.Response[Page[Module]], error) {
	return m.List(ctx, ListOptions{Extra: url.Values{"aplicacaoId": {applicationID}}})
}

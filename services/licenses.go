package services

import (
	"context"
	"net/url"
	"time"

	"github.com/devgrupoglobalsoft/apiexec"
)

const LicensesPath = "/api/licencas"

type License struct {
	ID           string    `json:"id"`
	Nome         string    `json:"nome"`
	ClienteID    string    `json:"clienteId"`
	AplicacaoID  string    `json:"aplicacaoId"`
	DataInicio   time.Time `json:"dataInicio"`
	DataFim      time.Time `json:"dataFim"`
	NumeroMaximo int       `json:"numeroMaximoUtilizadores"`
	Ativo        bool      `json:"ativo"`
}

type LicenseInput struct {
	Nome         string    `json:"nome"`
	ClienteID    string    `json:"clienteId"`
	AplicacaoID  string    `json:"aplicacaoId"`
	DataInicio   time.Time `json:"dataInicio"`
	DataFim      time.Time `json:"dataFim"`
	NumeroMaximo int       `json:"numeroMaximoUtilizadores"`
	Ativo        bool      `json:"ativo"`
}

// Licenses also invalidates clients, whose reads embed license counts.
type Licenses struct {
	*Resource[License, LicenseInput]
}

func NewLicenses(exec *apiexec.Executor) *Licenses {
	return &Licenses{NewResource[License, LicenseInput](exec, LicensesPath, "clientes")}
}

// ByClient lists the licenses of one client.
func (l *Licenses) ByClient(ctx context.Context, clientID string, lo ListOptions) (*apiexec.Response[Page[License]], error) {
	extra := url.Values{}
	for k, vs := range lo.Extra {
		extra[k] = vs
	}
	extra.Set("clienteId", clientID)
	lo.Extra = extra
	return l.List(ctx, lo)
}

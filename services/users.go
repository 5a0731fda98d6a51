package services

import "github.com/devgrupoglobalsoft/apiexec"

const UsersPath = "/api/utilizadores"

type User struct {
	ID        string   `json:"id"`
	Nome      string   `json:"nome"`
	Email     string   `json:"email"`
	ClienteID string   `json:"clienteId,omitempty"`
	PerfilIDs []string `json:"perfilIds,omitempty"`
	Ativo     bool     `json:"ativo"`
}

type UserInput struct {
	Nome      string   `json:"nome"`
	Email     string   `json:"email"`
	ClienteID string   `json:"clienteId,omitempty"`
	PerfilIDs []string `json:"perfilIds,omitempty"`
	Ativo     bool     `json:"ativo"`
}

type Users struct {
	*Resource[User, UserInput]
}

func NewUsers(exec *apiexec.Executor) *Users {
	return &Users{NewResource[User, UserInput](exec, UsersPath, "perfis")}
}

package services

import "github.com/devgrupoglobalsoft/apiexec"

const ProfilesPath = "/api/perfis"

type Profile struct {
	ID         string   `json:"id"`
	Nome       string   `json:"nome"`
	Descricao  string   `json:"descricao,omitempty"`
	ModuloIDs  []string `json:"moduloIds,omitempty"`
	Permissoes []string `json:"permissoes,omitempty"`
}

type ProfileInput struct {
	Nome       string   `json:"nome"`
	Descricao  string   `json:"descricao,omitempty"`
	ModuloIDs  []string `json:"moduloIds,omitempty"`
	Permissoes []string `json:"permissoes,omitempty"`
}

type Profiles struct {
	*Resource[Profile, ProfileInput]
}

// NewProfiles binds the profiles collection; users list their profiles.
func NewProfiles(exec *apiexec.Executor) *Profiles {
	return &Profiles{NewResource[Profile, ProfileInput](exec, ProfilesPath, "utilizadores")}
}

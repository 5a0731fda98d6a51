package apiexec_test

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/devgrupoglobalsoft/apiexec"
)

func ExampleFamilyOf() {
	fmt.Println(apiexec.FamilyOf("/api/licencas/42"))
	fmt.Println(apiexec.FamilyOf("/api/v1/perfis?page=2"))
	// Output:
	// licencas
	// perfis
}

func ExampleBuildKey() {
	key := apiexec.BuildKey("get", "/api/clientes", url.Values{"pageSize": {"10"}, "page": {"1"}}, nil, "")
	fmt.Println(key)
	// Output:
	// clientes|GET /api/clientes?page=1&pageSize=10
}

func ExampleError_UserMessage() {
	err := fmt.Errorf("loading licenses: %w", &apiexec.Error{
		Kind:    apiexec.KindAuth,
		Reason:  apiexec.ReasonRefreshFailed,
		Message: "token refresh failed",
	})

	fmt.Println(errors.Is(err, apiexec.ErrRefreshFailed))
	fmt.Println(apiexec.AsError(err).UserMessage("en"))
	// Output:
	// true
	// Your session has expired. Please sign in again.
}

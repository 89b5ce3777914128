// Package auth authorises SessionService calls by the role carried in the
// client certificate's organisational unit.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	api "github.com/shiv122/ecsexec/api/v1"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
)

var (
	ErrUnauthenticated  = errors.New("not authenticated")
	ErrPermissionDenied = errors.New("not authorised")
)

type Permission string

const (
	PermissionDiscover Permission = "ecs:discover"
	PermissionLogin    Permission = "sso:login"
	PermissionExec     Permission = "session:exec"
	PermissionWatch    Permission = "session:watch"
)

type Role string

const (
	RoleOperator Role = "operator"
	RoleViewer   Role = "viewer"
)

var RolePermissions = map[Role][]Permission{
	RoleOperator: {
		PermissionDiscover,
		PermissionLogin,
		PermissionExec,
		PermissionWatch,
	},
	RoleViewer: {PermissionDiscover, PermissionWatch},
}

var MethodPermissions = map[string]Permission{
	api.SessionService_ListClusters_FullMethodName:  PermissionDiscover,
	api.SessionService_ListServices_FullMethodName:  PermissionDiscover,
	api.SessionService_ListTasks_FullMethodName:     PermissionDiscover,
	api.SessionService_DescribeTasks_FullMethodName: PermissionDiscover,
	api.SessionService_CheckTools_FullMethodName:    PermissionDiscover,
	api.SessionService_Login_FullMethodName:         PermissionLogin,
	api.SessionService_CancelLogin_FullMethodName:   PermissionLogin,
	api.SessionService_StartSession_FullMethodName:  PermissionExec,
	api.SessionService_SendInput_FullMethodName:     PermissionExec,
	api.SessionService_CloseSession_FullMethodName:  PermissionExec,
	api.SessionService_Watch_FullMethodName:         PermissionWatch,
}

// GetClientIdentity returns the common name and first organisational unit of
// the verified client certificate.
func GetClientIdentity(ctx context.Context) (string, string, error) {
	p, ok := peer.FromContext(ctx)
	if !ok {
		return "", "", fmt.Errorf("failed to get peer info from context")
	}

	tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return "", "", fmt.Errorf("failed to get TLS info from peer auth info")
	}

	if len(tlsInfo.State.VerifiedChains) == 0 ||
		len(tlsInfo.State.VerifiedChains[0]) == 0 {
		return "", "", fmt.Errorf("no verified chains in TLS info")
	}

	cert := tlsInfo.State.VerifiedChains[0][0]

	cn := cert.Subject.CommonName

	var ou string
	if len(cert.Subject.OrganizationalUnit) > 0 {
		ou = cert.Subject.OrganizationalUnit[0]
	}

	return cn, ou, nil
}

func IsAuthorised(clientRole Role, method string) error {
	requiredPermission, exists := MethodPermissions[method]
	if !exists {
		return fmt.Errorf("specified method not in method permissions")
	}

	permissions, ok := RolePermissions[clientRole]
	if !ok {
		return fmt.Errorf("specified role not in role permissions")
	}

	if !slices.Contains(permissions, requiredPermission) {
		return fmt.Errorf("required permission not in permissions for role")
	}

	return nil
}

// Authorise returns the client's common name and role if the role may call
// method. Errors wrap ErrUnauthenticated or ErrPermissionDenied.
func Authorise(ctx context.Context, method string) (string, Role, error) {
	cn, ou, err := GetClientIdentity(ctx)
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}

	clientRole := Role(ou)

	if err := IsAuthorised(clientRole, method); err != nil {
		return cn, clientRole, fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	return cn, clientRole, nil
}

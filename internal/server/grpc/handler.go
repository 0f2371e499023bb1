package grpc

import (
	"context"
	"slices"

	"github.com/dmitrijs2005/okaeri/internal/server/api"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "okaeri.v1.Identity"

// IdentityServer is the handler type of the Identity service.
type IdentityServer interface {
	identity()
}

func (s *GRPCServer) identity() {}

type method func(s *GRPCServer, ctx context.Context, in map[string]any) (map[string]any, error)

var methods = map[string]method{
	"CreateAccount":          (*GRPCServer).createAccount,
	"CheckCredentials":       (*GRPCServer).checkCredentials,
	"ReadAccount":            (*GRPCServer).readAccount,
	"UpdateAccount":          (*GRPCServer).updateAccount,
	"ChangePassword":         (*GRPCServer).changePassword,
	"ChangeLoginKey":         (*GRPCServer).changeLoginKey,
	"QueryAccounts":          (*GRPCServer).queryAccounts,
	"CreateGroup":            (*GRPCServer).createGroup,
	"ReadGroup":              (*GRPCServer).readGroup,
	"UpdateGroup":            (*GRPCServer).updateGroup,
	"RemoveGroup":            (*GRPCServer).removeGroup,
	"QueryGroups":            (*GRPCServer).queryGroups,
	"AddAccountToGroup":      (*GRPCServer).addAccountToGroup,
	"RemoveAccountFromGroup": (*GRPCServer).removeAccountFromGroup,
	"IsAccountInAnyGroup":    (*GRPCServer).isAccountInAnyGroup,
	"Reconcile":              (*GRPCServer).reconcile,
}

// FullMethod returns the invocation path of a method of the Identity service.
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func serviceDesc() *grpc.ServiceDesc {
	names := make([]string, 0, len(methods))
	for name := range methods {
		names = append(names, name)
	}
	slices.Sort(names)

	desc := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*IdentityServer)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "okaeri/v1/identity.proto",
	}
	for _, name := range names {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{
			MethodName: name,
			Handler:    unaryHandler(name, methods[name]),
		})
	}
	return desc
}

func unaryHandler(name string, fn method) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(*GRPCServer)
		handler := func(ctx context.Context, req any) (any, error) {
			out, err := fn(s, ctx, req.(*structpb.Struct).AsMap())
			if err != nil {
				return nil, err
			}
			return structpb.NewStruct(out)
		}
		if interceptor == nil {
			return handler(ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
		return interceptor(ctx, in, info, handler)
	}
}

func idField(in map[string]any, field string) (string, error) {
	v, _, err := api.String(in, field)
	return v, err
}

func (s *GRPCServer) createAccount(ctx context.Context, in map[string]any) (map[string]any, error) {
	req, err := api.NewAccount(in, s.svc.Accounts.LoginKeyField())
	if err != nil {
		return nil, err
	}
	accountID, err := s.svc.Accounts.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	return map[string]any{api.FieldID: accountID.String()}, nil
}

func (s *GRPCServer) checkCredentials(ctx context.Context, in map[string]any) (map[string]any, error) {
	loginKey, password, err := api.Credentials(in, s.svc.Accounts.LoginKeyField())
	if err != nil {
		return nil, err
	}
	accountID, err := s.svc.Accounts.CheckCredentials(ctx, loginKey, password)
	if err != nil {
		return nil, err
	}
	return map[string]any{api.FieldID: accountID.String()}, nil
}

func (s *GRPCServer) readAccount(ctx context.Context, in map[string]any) (map[string]any, error) {
	accountID, err := idField(in, api.FieldID)
	if err != nil {
		return nil, err
	}
	if accountID == "" {
		accountID = identityFromContext(ctx)
	}
	acc, err := s.svc.Accounts.Read(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return acc.Document(s.svc.Accounts.LoginKeyField()), nil
}

func (s *GRPCServer) updateAccount(ctx context.Context, in map[string]any) (map[string]any, error) {
	accountID, err := idField(in, api.FieldID)
	if err != nil {
		return nil, err
	}
	if err := s.svc.Accounts.Update(ctx, accountID, api.AccountPatch(in, api.FieldID)); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *GRPCServer) changePassword(ctx context.Context, in map[string]any) (map[string]any, error) {
	accountID, err := idField(in, api.FieldID)
	if err != nil {
		return nil, err
	}
	password, _, err := api.String(in, api.FieldPassword)
	if err != nil {
		return nil, err
	}
	return nil, s.svc.Accounts.ChangePassword(ctx, accountID, password)
}

func (s *GRPCServer) changeLoginKey(ctx context.Context, in map[string]any) (map[string]any, error) {
	accountID, err := idField(in, api.FieldID)
	if err != nil {
		return nil, err
	}
	loginKey, _, err := api.String(in, s.svc.Accounts.LoginKeyField())
	if err != nil {
		return nil, err
	}
	return nil, s.svc.Accounts.ChangeLoginKey(ctx, accountID, loginKey)
}

func (s *GRPCServer) queryAccounts(ctx context.Context, in map[string]any) (map[string]any, error) {
	q, err := api.Query(in)
	if err != nil {
		return nil, err
	}
	list, err := s.svc.Accounts.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return map[string]any{"accounts": api.Accounts(list, s.svc.Accounts.LoginKeyField())}, nil
}

func (s *GRPCServer) createGroup(ctx context.Context, in map[string]any) (map[string]any, error) {
	req, err := api.NewGroup(in)
	if err != nil {
		return nil, err
	}
	groupID, err := s.svc.Groups.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	return map[string]any{api.FieldID: groupID.String()}, nil
}

func (s *GRPCServer) readGroup(ctx context.Context, in map[string]any) (map[string]any, error) {
	groupID, err := idField(in, api.FieldID)
	if err != nil {
		return nil, err
	}
	g, err := s.svc.Groups.Read(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return g.Document(s.svc.Accounts.LoginKeyField()), nil
}

func (s *GRPCServer) updateGroup(ctx context.Context, in map[string]any) (map[string]any, error) {
	groupID, err := idField(in, api.FieldID)
	if err != nil {
		return nil, err
	}
	patch, err := api.GroupPatch(in)
	if err != nil {
		return nil, err
	}
	return nil, s.svc.Groups.Update(ctx, groupID, patch)
}

func (s *GRPCServer) removeGroup(ctx context.Context, in map[string]any) (map[string]any, error) {
	groupID, err := idField(in, api.FieldID)
	if err != nil {
		return nil, err
	}
	code, err := s.svc.Groups.Remove(ctx, groupID)
	if err != nil {
		return nil, err
	}
	return map[string]any{api.FieldCode: code}, nil
}

func (s *GRPCServer) queryGroups(ctx context.Context, in map[string]any) (map[string]any, error) {
	q, err := api.Query(in)
	if err != nil {
		return nil, err
	}
	list, err := s.svc.Groups.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return map[string]any{"groups": api.Groups(list)}, nil
}

func (s *GRPCServer) membershipPair(in map[string]any) (string, string, error) {
	accountID, err := idField(in, api.FieldAccountID)
	if err != nil {
		return "", "", err
	}
	groupID, err := idField(in, api.FieldGroupID)
	if err != nil {
		return "", "", err
	}
	return accountID, groupID, nil
}

func (s *GRPCServer) addAccountToGroup(ctx context.Context, in map[string]any) (map[string]any, error) {
	accountID, groupID, err := s.membershipPair(in)
	if err != nil {
		return nil, err
	}
	return nil, s.svc.Membership.AddAccountToGroup(ctx, accountID, groupID)
}

func (s *GRPCServer) removeAccountFromGroup(ctx context.Context, in map[string]any) (map[string]any, error) {
	accountID, groupID, err := s.membershipPair(in)
	if err != nil {
		return nil, err
	}
	return nil, s.svc.Membership.RemoveAccountFromGroup(ctx, accountID, groupID)
}

func (s *GRPCServer) isAccountInAnyGroup(ctx context.Context, in map[string]any) (map[string]any, error) {
	accountID, err := idField(in, api.FieldAccountID)
	if err != nil {
		return nil, err
	}
	codes, err := api.Strings(in, api.FieldCodes)
	if err != nil {
		return nil, err
	}
	member, err := s.svc.Membership.IsAccountInAnyGroup(ctx, accountID, codes)
	if err != nil {
		return nil, err
	}
	return map[string]any{"member": member}, nil
}

func (s *GRPCServer) reconcile(ctx context.Context, _ map[string]any) (map[string]any, error) {
	rep, err := s.svc.Membership.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	return api.Report(rep), nil
}

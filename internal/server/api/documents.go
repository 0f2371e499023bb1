// Package api converts between the flat JSON documents the transports speak
// and the service inputs and records.
package api

import (
	"maps"
	"math"
	"strconv"

	"github.com/dmitrijs2005/okaeri/internal/common"
	"github.com/dmitrijs2005/okaeri/internal/server/models"
	"github.com/dmitrijs2005/okaeri/internal/server/services"
	"github.com/dmitrijs2005/okaeri/internal/validation"
)

// Request field names shared by both transports.
const (
	FieldID        = "id"
	FieldPassword  = "password"
	FieldName      = "name"
	FieldCode      = "code"
	FieldAccountID = "account_id"
	FieldGroupID   = "group_id"
	FieldCodes     = "codes"
	FieldFilter    = "filter"
	FieldOrderBy   = "order_by"
	FieldPage      = "page"
)

func typeViolation(field, want string) common.Violation {
	return common.Violation{Field: field, Rule: "type", Param: want}
}

// String reads an optional string field. ok is false when the field is absent
// or null.
func String(doc map[string]any, field string) (s string, ok bool, err error) {
	v, present := doc[field]
	if !present || v == nil {
		return "", false, nil
	}
	s, isString := v.(string)
	if !isString {
		return "", false, &common.ValidationError{Violations: []common.Violation{typeViolation(field, "string")}}
	}
	return s, true, nil
}

// Strings reads an optional list of strings.
func Strings(doc map[string]any, field string) ([]string, error) {
	v, present := doc[field]
	if !present || v == nil {
		return nil, nil
	}
	items, isList := v.([]any)
	if !isList {
		return nil, &common.ValidationError{Violations: []common.Violation{typeViolation(field, "list")}}
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		s, isString := it.(string)
		if !isString {
			return nil, &common.ValidationError{Violations: []common.Violation{typeViolation(field, "list")}}
		}
		out = append(out, s)
	}
	return out, nil
}

// Page reads the page number, which may arrive as a JSON number or a decimal
// string.
func Page(doc map[string]any) (int, error) {
	bad := &common.ValidationError{Violations: []common.Violation{typeViolation(FieldPage, "integer")}}
	switch v := doc[FieldPage].(type) {
	case nil:
		return 1, nil
	case float64:
		if v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
			return 0, bad
		}
		return int(v), nil
	case string:
		if v == "" {
			return 1, nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, bad
		}
		return n, nil
	}
	return 0, bad
}

// NewAccount splits a creation document into login key, password and
// profile. Every other key is treated as a profile field.
func NewAccount(doc map[string]any, loginKeyField string) (services.NewAccount, error) {
	loginKey, _, err1 := String(doc, loginKeyField)
	password, _, err2 := String(doc, FieldPassword)
	if err := validation.Merge(err1, err2); err != nil {
		return services.NewAccount{}, err
	}
	profile := maps.Clone(doc)
	delete(profile, loginKeyField)
	delete(profile, FieldPassword)
	return services.NewAccount{LoginKey: loginKey, Password: password, Profile: profile}, nil
}

// Credentials reads the login key and password of an authentication request.
func Credentials(doc map[string]any, loginKeyField string) (loginKey, password string, err error) {
	loginKey, err1 := requiredString(doc, loginKeyField)
	password, err2 := requiredString(doc, FieldPassword)
	return loginKey, password, validation.Merge(err1, err2)
}

// requiredString reads a string field that must be present. The empty string
// is accepted.
func requiredString(doc map[string]any, field string) (string, error) {
	s, ok, err := String(doc, field)
	if err == nil && !ok {
		err = common.NewValidationError(field, "required", "")
	}
	return s, err
}

// AccountPatch treats every key of doc except skip as a profile change.
func AccountPatch(doc map[string]any, skip ...string) services.AccountPatch {
	profile := maps.Clone(doc)
	for _, k := range skip {
		delete(profile, k)
	}
	return services.AccountPatch{Profile: profile}
}

// NewGroup reads a group creation document.
func NewGroup(doc map[string]any) (services.NewGroup, error) {
	name, _, err1 := String(doc, FieldName)
	code, _, err2 := String(doc, FieldCode)
	return services.NewGroup{Name: name, Code: code}, validation.Merge(err1, err2)
}

// GroupPatch reads a group update document. Absent fields stay unchanged.
func GroupPatch(doc map[string]any) (services.GroupPatch, error) {
	var p services.GroupPatch
	name, hasName, err1 := String(doc, FieldName)
	code, hasCode, err2 := String(doc, FieldCode)
	if err := validation.Merge(err1, err2); err != nil {
		return p, err
	}
	if hasName {
		p.Name = &name
	}
	if hasCode {
		p.Code = &code
	}
	return p, nil
}

// Query reads the listing parameters.
func Query(doc map[string]any) (services.Query, error) {
	filter, _, err1 := String(doc, FieldFilter)
	orderBy, _, err2 := String(doc, FieldOrderBy)
	page, err3 := Page(doc)
	return services.Query{Filter: filter, OrderBy: orderBy, Page: page}, validation.Merge(err1, err2, err3)
}

// Accounts renders a page of accounts.
func Accounts(list []models.Account, loginKeyField string) []any {
	out := make([]any, 0, len(list))
	for _, a := range list {
		out = append(out, a.Document(loginKeyField))
	}
	return out
}

// Groups renders a page of group listings.
func Groups(list []models.GroupListing) []any {
	out := make([]any, 0, len(list))
	for _, g := range list {
		out = append(out, g.Document())
	}
	return out
}

// Report renders a reconcile report.
func Report(r services.ReconcileReport) map[string]any {
	return map[string]any{
		"groups_fixed":   r.GroupsFixed,
		"accounts_fixed": r.AccountsFixed,
		"dangling_refs":  r.DanglingRefs,
	}
}

// Violations renders validation violations as documents.
func Violations(ve *common.ValidationError) []any {
	out := make([]any, 0, len(ve.Violations))
	for _, v := range ve.Violations {
		d := map[string]any{"field": v.Field, "rule": v.Rule}
		if v.Param != "" {
			d["param"] = v.Param
		}
		out = append(out, d)
	}
	return out
}

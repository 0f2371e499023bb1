package httpapi

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/okaeri/internal/logging"
	"github.com/dmitrijs2005/okaeri/internal/server/api"
	"github.com/dmitrijs2005/okaeri/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type handler struct {
	accounts       *services.AccountService
	groups         *services.GroupService
	membership     *services.MembershipService
	identityHeader string
	ping           func(ctx context.Context) error
	log            logging.Logger
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.ping != nil {
		if err := h.ping(r.Context()); err != nil {
			h.log.Warn(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *handler) createAccount(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req, err := api.NewAccount(doc, h.accounts.LoginKeyField())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := h.accounts.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeText(w, http.StatusCreated, id.String())
}

func (h *handler) checkCredentials(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	loginKey, password, err := api.Credentials(doc, h.accounts.LoginKeyField())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := h.accounts.CheckCredentials(r.Context(), loginKey, password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeText(w, http.StatusOK, id.String())
}

func (h *handler) readAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" && h.identityHeader != "" {
		id = r.Header.Get(h.identityHeader)
	}
	acc, err := h.accounts.Read(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc.Document(h.accounts.LoginKeyField()))
}

func (h *handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.accounts.Update(r.Context(), chi.URLParam(r, "id"), api.AccountPatch(doc)); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	password, _, err := api.String(doc, api.FieldPassword)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.accounts.ChangePassword(r.Context(), chi.URLParam(r, "id"), password); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) changeLoginKey(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	loginKey, _, err := api.String(doc, h.accounts.LoginKeyField())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.accounts.ChangeLoginKey(r.Context(), chi.URLParam(r, "id"), loginKey); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryDocument lifts the listing parameters of the URL into a document.
func queryDocument(r *http.Request) map[string]any {
	doc := map[string]any{}
	values := r.URL.Query()
	for _, k := range []string{api.FieldFilter, api.FieldOrderBy, api.FieldPage} {
		if values.Has(k) {
			doc[k] = values.Get(k)
		}
	}
	return doc
}

func (h *handler) queryAccounts(w http.ResponseWriter, r *http.Request) {
	q, err := api.Query(queryDocument(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.accounts.Query(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Accounts(list, h.accounts.LoginKeyField()))
}

func (h *handler) createGroup(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req, err := api.NewGroup(doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := h.groups.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeText(w, http.StatusCreated, id.String())
}

func (h *handler) readGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.groups.Read(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g.Document(h.accounts.LoginKeyField()))
}

func (h *handler) updateGroup(w http.ResponseWriter, r *http.Request) {
	doc, err := decodeDocument(w, r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	patch, err := api.GroupPatch(doc)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.groups.Update(r.Context(), chi.URLParam(r, "id"), patch); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) removeGroup(w http.ResponseWriter, r *http.Request) {
	code, err := h.groups.Remove(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{api.FieldCode: code})
}

func (h *handler) queryGroups(w http.ResponseWriter, r *http.Request) {
	q, err := api.Query(queryDocument(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	list, err := h.groups.Query(r.Context(), q)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Groups(list))
}

func (h *handler) addAccountToGroup(w http.ResponseWriter, r *http.Request) {
	err := h.membership.AddAccountToGroup(r.Context(), chi.URLParam(r, "account"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) removeAccountFromGroup(w http.ResponseWriter, r *http.Request) {
	err := h.membership.RemoveAccountFromGroup(r.Context(), chi.URLParam(r, "account"), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) isAccountInAnyGroup(w http.ResponseWriter, r *http.Request) {
	codes := r.URL.Query()["code"]
	member, err := h.membership.IsAccountInAnyGroup(r.Context(), chi.URLParam(r, "id"), codes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"member": member})
}

func (h *handler) reconcile(w http.ResponseWriter, r *http.Request) {
	rep, err := h.membership.Reconcile(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, api.Report(rep))
}

package linkedin

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/custodia-labs/sercha-connect/internal/core/domain"
	"github.com/custodia-labs/sercha-connect/internal/core/ports/driven"
)

const organizationURNPrefix = "urn:li:organization:"

var pageDescriptor = domain.ProviderDescriptor{
	ID:             PageID,
	Name:           "LinkedIn Page",
	RefreshIsSlow:  true,
	InBetweenSteps: true,
	Scopes: []string{
		"openid", "profile", "w_member_social",
		"r_organization_admin", "w_organization_social",
	},
}

var pageMethods = []domain.MethodSpec{
	{
		Provider:    PageID,
		Name:        "pages",
		Description: "List the pages the connected administrator manages",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Provider:    PageID,
		Name:        "post",
		Description: "Publish a text post as the connected page",
		InputSchema: postSchema,
	},
}

// PageRegistration returns the registry entry of the page provider.
func PageRegistration(cfg Config) driven.ProviderRegistration {
	return driven.ProviderRegistration{
		Descriptor: pageDescriptor,
		Fields:     fields,
		Methods:    pageMethods,
		New: func(info *domain.ClientInformation) driven.Provider {
			return NewPage(cfg, info)
		},
	}
}

// Page posts as an organization page administered by the signed-in member.
type Page struct {
	base
}

var (
	_ driven.Provider    = (*Page)(nil)
	_ driven.Reconnector = (*Page)(nil)
)

// NewPage creates a page provider bound to the resolved client credentials.
func NewPage(cfg Config, info *domain.ClientInformation) *Page {
	return &Page{base: newBase(pageDescriptor, cfg, info)}
}

// Organization is a LinkedIn page.
type Organization struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	VanityName string `json:"vanity_name,omitempty"`
}

// Authenticate connects the first page the member administers. The admin's
// other pages are listed in the settings for the setup step.
func (p *Page) Authenticate(
	ctx context.Context,
	params domain.AuthParams,
	_ *domain.ExternalInstance,
) (*domain.AuthResult, error) {
	tok, err := p.exchange(ctx, params)
	if err != nil {
		return nil, err
	}

	admin, err := p.userInfo(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}

	ids, err := p.administeredIDs(ctx, tok.AccessToken)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, &domain.ScopesError{Message: "the LinkedIn member does not administer any page"}
	}

	pages := make([]any, 0, len(ids))
	var first *Organization
	for _, id := range ids {
		org, err := p.organization(ctx, tok.AccessToken, id)
		if err != nil {
			return nil, err
		}
		if first == nil {
			first = org
		}
		pages = append(pages, map[string]any{"id": org.ID, "name": org.Name})
	}

	result := p.result(tok)
	setOrganization(result, first)
	result.Settings = map[string]any{
		"admin_id":   admin.Sub,
		"admin_name": admin.Name,
		"pages":      pages,
	}
	return result, nil
}

// Reconnect binds a fresh authorization to the page that was originally
// connected. The signed-in member must still administer it.
func (p *Page) Reconnect(ctx context.Context, accountID string, result *domain.AuthResult) (*domain.AuthResult, error) {
	if result.ID == accountID {
		return result, nil
	}

	ids, err := p.administeredIDs(ctx, result.AccessToken)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		if id != accountID {
			continue
		}
		org, err := p.organization(ctx, result.AccessToken, id)
		if err != nil {
			return nil, err
		}
		setOrganization(result, org)
		return result, nil
	}
	return nil, domain.ErrAccountMismatch
}

// Methods returns the invocable methods.
func (p *Page) Methods() map[string]driven.MethodHandler {
	return map[string]driven.MethodHandler{
		"pages": p.pages,
		"post":  p.post,
	}
}

func (p *Page) pages(ctx context.Context, call domain.Call) (any, error) {
	ids, err := p.administeredIDs(ctx, call.AccessToken)
	if err != nil {
		return nil, err
	}

	out := make([]Organization, 0, len(ids))
	for _, id := range ids {
		org, err := p.organization(ctx, call.AccessToken, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *org)
	}
	return out, nil
}

func (p *Page) post(ctx context.Context, call domain.Call) (any, error) {
	return p.share(ctx, call.AccessToken, organizationURNPrefix+call.AccountID, call.StringArg("text"))
}

// administeredIDs lists the organization ids the member is an approved administrator of.
func (p *Page) administeredIDs(ctx context.Context, token string) ([]string, error) {
	var resp struct {
		Elements []struct {
			Organization string `json:"organization"`
		} `json:"elements"`
	}
	query := url.Values{
		"q":     {"roleAssignee"},
		"role":  {"ADMINISTRATOR"},
		"state": {"APPROVED"},
	}
	if err := p.api.Get(ctx, "/rest/organizationAcls", token, query, &resp); err != nil {
		return nil, fmt.Errorf("linkedin: organization acls: %w", err)
	}

	ids := make([]string, 0, len(resp.Elements))
	for _, e := range resp.Elements {
		if id, ok := strings.CutPrefix(e.Organization, organizationURNPrefix); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (p *Page) organization(ctx context.Context, token, id string) (*Organization, error) {
	var resp struct {
		ID            int64  `json:"id"`
		LocalizedName string `json:"localizedName"`
		VanityName    string `json:"vanityName"`
	}
	if err := p.api.JSON(ctx, http.MethodGet, "/rest/organizations/"+url.PathEscape(id), token, nil, &resp); err != nil {
		return nil, fmt.Errorf("linkedin: organization %s: %w", id, err)
	}
	return &Organization{ID: id, Name: resp.LocalizedName, VanityName: resp.VanityName}, nil
}

func setOrganization(result *domain.AuthResult, org *Organization) {
	result.ID = org.ID
	result.Name = org.Name
	result.Username = org.VanityName
	result.Picture = ""
}

package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/poyrazK/desecdesk/internal/core/domain"
)

// Request builders. The facade enqueues these through the queue; the
// typed methods below run them directly for synchronous callers.

func ReqListZones() domain.Request {
	return domain.Request{Method: "GET", Path: "/domains/"}
}

func ReqCreateZone(name string) domain.Request {
	return domain.Request{Method: "POST", Path: "/domains/", Body: map[string]string{"name": name}}
}

func ReqGetZone(name string) domain.Request {
	return domain.Request{Method: "GET", Path: fmt.Sprintf("/domains/%s/", url.PathEscape(name))}
}

func ReqDeleteZone(name string) domain.Request {
	return domain.Request{Method: "DELETE", Path: fmt.Sprintf("/domains/%s/", url.PathEscape(name))}
}

func ReqListRRsets(zone string) domain.Request {
	return domain.Request{Method: "GET", Path: fmt.Sprintf("/domains/%s/rrsets/", url.PathEscape(zone))}
}

func ReqCreateRRset(zone string, set domain.RRset) domain.Request {
	return domain.Request{
		Method: "POST",
		Path:   fmt.Sprintf("/domains/%s/rrsets/", url.PathEscape(zone)),
		Body: map[string]any{
			"subname": set.Subname,
			"type":    set.Type,
			"ttl":     set.TTL,
			"records": set.Records,
		},
	}
}

// rrsetPath addresses a single RRset. The "..." suffix keeps the empty
// apex subname unambiguous in the URL.
func rrsetPath(zone, subname, typ string) string {
	return fmt.Sprintf("/domains/%s/rrsets/%s.../%s/",
		url.PathEscape(zone), url.PathEscape(subname), url.PathEscape(typ))
}

func ReqUpdateRRset(zone, subname, typ string, patch map[string]any) domain.Request {
	return domain.Request{Method: "PATCH", Path: rrsetPath(zone, subname, typ), Body: patch}
}

func ReqDeleteRRset(zone, subname, typ string) domain.Request {
	return domain.Request{Method: "DELETE", Path: rrsetPath(zone, subname, typ)}
}

// ReqBulkPutRRsets replaces the whole RRset collection of a zone in a
// single call; an entry with empty records deletes that RRset.
func ReqBulkPutRRsets(zone string, sets []domain.RRset) domain.Request {
	body := make([]map[string]any, 0, len(sets))
	for _, set := range sets {
		body = append(body, map[string]any{
			"subname": set.Subname,
			"type":    set.Type,
			"ttl":     set.TTL,
			"records": set.Records,
		})
	}
	return domain.Request{
		Method: "PUT",
		Path:   fmt.Sprintf("/domains/%s/rrsets/", url.PathEscape(zone)),
		Body:   body,
	}
}

func ReqAccount() domain.Request {
	return domain.Request{Method: "GET", Path: "/auth/account/"}
}

func ReqListTokens() domain.Request {
	return domain.Request{Method: "GET", Path: "/auth/tokens/"}
}

func ReqCreateToken(attrs map[string]any) domain.Request {
	return domain.Request{Method: "POST", Path: "/auth/tokens/", Body: attrs}
}

func ReqGetToken(id string) domain.Request {
	return domain.Request{Method: "GET", Path: fmt.Sprintf("/auth/tokens/%s/", url.PathEscape(id))}
}

func ReqUpdateToken(id string, patch map[string]any) domain.Request {
	return domain.Request{Method: "PATCH", Path: fmt.Sprintf("/auth/tokens/%s/", url.PathEscape(id)), Body: patch}
}

func ReqDeleteToken(id string) domain.Request {
	return domain.Request{Method: "DELETE", Path: fmt.Sprintf("/auth/tokens/%s/", url.PathEscape(id))}
}

func ReqListPolicies(tokenID string) domain.Request {
	return domain.Request{Method: "GET", Path: fmt.Sprintf("/auth/tokens/%s/policies/rrsets/", url.PathEscape(tokenID))}
}

func ReqCreatePolicy(tokenID string, attrs map[string]any) domain.Request {
	return domain.Request{Method: "POST", Path: fmt.Sprintf("/auth/tokens/%s/policies/rrsets/", url.PathEscape(tokenID)), Body: attrs}
}

func ReqUpdatePolicy(tokenID, policyID string, patch map[string]any) domain.Request {
	return domain.Request{
		Method: "PATCH",
		Path:   fmt.Sprintf("/auth/tokens/%s/policies/rrsets/%s/", url.PathEscape(tokenID), url.PathEscape(policyID)),
		Body:   patch,
	}
}

func ReqDeletePolicy(tokenID, policyID string) domain.Request {
	return domain.Request{
		Method: "DELETE",
		Path:   fmt.Sprintf("/auth/tokens/%s/policies/rrsets/%s/", url.PathEscape(tokenID), url.PathEscape(policyID)),
	}
}

// ReqConnectivity is a cheap probe used by keepalive and offline-exit
// checks; any classified response proves the link is up.
func ReqConnectivity() domain.Request {
	return domain.Request{Method: "GET", Path: "/"}
}

// Typed operations. Each wraps Do and decodes the payload; the Result is
// returned alongside so callers can surface classified failures.

func (c *Client) ListZones(ctx context.Context) ([]domain.Zone, domain.Result) {
	res := c.Do(ctx, ReqListZones())
	var zones []domain.Zone
	if res.OK() {
		if err := res.Decode(&zones); err != nil {
			return nil, domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
		}
	}
	return zones, res
}

func (c *Client) CreateZone(ctx context.Context, name string) (domain.Zone, domain.Result) {
	res := c.Do(ctx, ReqCreateZone(name))
	var zone domain.Zone
	if res.OK() {
		if err := res.Decode(&zone); err != nil {
			return zone, domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
		}
	}
	return zone, res
}

func (c *Client) GetZone(ctx context.Context, name string) (domain.Zone, domain.Result) {
	res := c.Do(ctx, ReqGetZone(name))
	var zone domain.Zone
	if res.OK() {
		if err := res.Decode(&zone); err != nil {
			return zone, domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
		}
	}
	return zone, res
}

func (c *Client) DeleteZone(ctx context.Context, name string) domain.Result {
	return c.Do(ctx, ReqDeleteZone(name))
}

func (c *Client) ListRRsets(ctx context.Context, zone string) ([]domain.RRset, domain.Result) {
	res := c.Do(ctx, ReqListRRsets(zone))
	var sets []domain.RRset
	if res.OK() {
		if err := res.Decode(&sets); err != nil {
			return nil, domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
		}
	}
	return sets, res
}

func (c *Client) CreateRRset(ctx context.Context, zone string, set domain.RRset) (domain.RRset, domain.Result) {
	res := c.Do(ctx, ReqCreateRRset(zone, set))
	var out domain.RRset
	if res.OK() {
		if err := res.Decode(&out); err != nil {
			return out, domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
		}
	}
	return out, res
}

func (c *Client) UpdateRRset(ctx context.Context, zone, subname, typ string, patch map[string]any) (domain.RRset, domain.Result) {
	res := c.Do(ctx, ReqUpdateRRset(zone, subname, typ, patch))
	var out domain.RRset
	if res.OK() {
		if err := res.Decode(&out); err != nil {
			return out, domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
		}
	}
	return out, res
}

func (c *Client) DeleteRRset(ctx context.Context, zone, subname, typ string) domain.Result {
	return c.Do(ctx, ReqDeleteRRset(zone, subname, typ))
}

func (c *Client) BulkPutRRsets(ctx context.Context, zone string, sets []domain.RRset) domain.Result {
	return c.Do(ctx, ReqBulkPutRRsets(zone, sets))
}

func (c *Client) GetAccount(ctx context.Context) (domain.AccountInfo, domain.Result) {
	res := c.Do(ctx, ReqAccount())
	var info domain.AccountInfo
	if res.OK() {
		if err := res.Decode(&info); err != nil {
			return info, domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
		}
	}
	return info, res
}

func (c *Client) ListTokens(ctx context.Context) ([]domain.Token, domain.Result) {
	res := c.Do(ctx, ReqListTokens())
	var tokens []domain.Token
	if res.OK() {
		if err := res.Decode(&tokens); err != nil {
			return nil, domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
		}
	}
	return tokens, res
}

// CreateToken returns the new token together with its one-time secret.
// The secret is handed to the caller and nowhere else.
func (c *Client) CreateToken(ctx context.Context, attrs map[string]any) (domain.TokenSecret, domain.Result) {
	res := c.Do(ctx, ReqCreateToken(attrs))
	var out domain.TokenSecret
	if res.OK() {
		var raw struct {
			domain.Token
			Secret string `json:"token"`
		}
		if err := res.Decode(&raw); err != nil {
			return out, domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
		}
		out = domain.TokenSecret{Token: raw.Token, Secret: raw.Secret}
	}
	return out, res
}

func (c *Client) GetToken(ctx context.Context, id string) (domain.Token, domain.Result) {
	res := c.Do(ctx, ReqGetToken(id))
	var token domain.Token
	if res.OK() {
		if err := res.Decode(&token); err != nil {
			return token, domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
		}
	}
	return token, res
}

func (c *Client) UpdateToken(ctx context.Context, id string, patch map[string]any) (domain.Token, domain.Result) {
	res := c.Do(ctx, ReqUpdateToken(id, patch))
	var token domain.Token
	if res.OK() {
		if err := res.Decode(&token); err != nil {
			return token, domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
		}
	}
	return token, res
}

func (c *Client) DeleteToken(ctx context.Context, id string) domain.Result {
	return c.Do(ctx, ReqDeleteToken(id))
}

func (c *Client) ListPolicies(ctx context.Context, tokenID string) ([]domain.TokenPolicy, domain.Result) {
	res := c.Do(ctx, ReqListPolicies(tokenID))
	var policies []domain.TokenPolicy
	if res.OK() {
		if err := res.Decode(&policies); err != nil {
			return nil, domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
		}
		for i := range policies {
			policies[i].TokenID = tokenID
		}
	}
	return policies, res
}

func (c *Client) CreatePolicy(ctx context.Context, tokenID string, attrs map[string]any) (domain.TokenPolicy, domain.Result) {
	res := c.Do(ctx, ReqCreatePolicy(tokenID, attrs))
	var policy domain.TokenPolicy
	if res.OK() {
		if err := res.Decode(&policy); err != nil {
			return policy, domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
		}
		policy.TokenID = tokenID
	}
	return policy, res
}

func (c *Client) UpdatePolicy(ctx context.Context, tokenID, policyID string, patch map[string]any) (domain.TokenPolicy, domain.Result) {
	res := c.Do(ctx, ReqUpdatePolicy(tokenID, policyID, patch))
	var policy domain.TokenPolicy
	if res.OK() {
		if err := res.Decode(&policy); err != nil {
			return policy, domain.Result{Kind: domain.KindNetwork, Message: err.Error()}
		}
		policy.TokenID = tokenID
	}
	return policy, res
}

func (c *Client) DeletePolicy(ctx context.Context, tokenID, policyID string) domain.Result {
	return c.Do(ctx, ReqDeletePolicy(tokenID, policyID))
}

// Connectivity probes the API root. It reports true for any classified
// HTTP response; only transport failures count as offline.
func (c *Client) Connectivity(ctx context.Context) bool {
	res := c.Do(ctx, ReqConnectivity())
	return res.Kind != domain.KindNetwork
}

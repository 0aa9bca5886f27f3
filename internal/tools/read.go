package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/xela07ax/idp-admin-gateway/internal/connectors/okta"
	"github.com/xela07ax/idp-admin-gateway/internal/domain"
)

const defaultLimit = 100

// Нативные формы ответов провайдера. Наружу не уходят.
type oktaUser struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Profile struct {
		Email     string `json:"email"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
		Login     string `json:"login"`
	} `json:"profile"`
}

type oktaGroup struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Profile *struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type oktaApp struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Label  string `json:"label"`
	Status string `json:"status"`
}

type oktaLogEvent struct {
	UUID      string `json:"uuid"`
	Published string `json:"published"`
	EventType string `json:"eventType"`
	Outcome   *struct {
		Result string `json:"result"`
	} `json:"outcome"`
	Actor *struct {
		DisplayName string `json:"displayName"`
	} `json:"actor"`
	Target []struct {
		DisplayName string `json:"displayName"`
	} `json:"target"`
}

func readOp[T any](d Deps, name, description string, action func(ctx context.Context, in T) (interface{}, error)) *Operation {
	return &Operation{
		Name:        name,
		Description: description,
		Kind:        KindRead,
		Invoke: func(ctx context.Context, raw json.RawMessage) (interface{}, error) {
			in, args, err := decode[T](name, raw)
			if err != nil {
				return nil, err
			}
			return d.run(ctx, name, args, func(ctx context.Context) (interface{}, error) {
				return action(ctx, in)
			})
		},
	}
}

func registerReadTools(c *Catalog, d Deps) {
	c.register(
		readOp(d, "get_user_by_email", "Return a single user by primary email address.", d.getUserByEmail),
		readOp(d, "search_users", "Search users with Okta search syntax. Supports pagination via 'after' cursor.", d.searchUsers),
		readOp(d, "list_groups", "List groups with optional query filter. Supports pagination via 'after' cursor.", d.listGroups),
		readOp(d, "list_apps", "List Okta applications with optional query filter. Supports pagination via 'after' cursor.", d.listApps),
		readOp(d, "system_log", "Query Okta System Log by expression with optional since/until ISO timestamps.", d.systemLog),
	)
}

func (d Deps) getUserByEmail(ctx context.Context, in EmailInput) (interface{}, error) {
	q := url.Values{"search": {fmt.Sprintf(`profile.email eq "%s"`, escapeQuotes(in.Email))}}
	res, err := d.IdP.Get(ctx, "/users", q)
	if err != nil {
		return nil, err
	}
	var users []oktaUser
	if err := res.Decode(&users); err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return domain.Lookup[domain.UserResult]{Found: false}, nil
	}
	u := users[0]
	item := domain.UserResult{
		ID:        u.ID,
		Status:    u.Status,
		Email:     u.Profile.Email,
		FirstName: u.Profile.FirstName,
		LastName:  u.Profile.LastName,
		Login:     u.Profile.Login,
	}
	return domain.Lookup[domain.UserResult]{Found: true, Item: &item}, nil
}

func (d Deps) searchUsers(ctx context.Context, in SearchUsersInput) (interface{}, error) {
	q := pageQuery(in.Limit, in.After)
	q.Set("search", in.Query)
	if in.Status != "" {
		q.Set("filter", fmt.Sprintf(`status eq "%s"`, in.Status))
	}
	res, err := d.IdP.Get(ctx, "/users", q)
	if err != nil {
		return nil, err
	}
	var users []oktaUser
	if err := res.Decode(&users); err != nil {
		return nil, err
	}
	items := make([]domain.UserResult, 0, len(users))
	for _, u := range users {
		items = append(items, domain.UserResult{
			ID:        u.ID,
			Status:    u.Status,
			Email:     u.Profile.Email,
			FirstName: u.Profile.FirstName,
			LastName:  u.Profile.LastName,
		})
	}
	return domain.Page[domain.UserResult]{Items: items, NextCursor: cursor(res)}, nil
}

func (d Deps) listGroups(ctx context.Context, in ListQueryInput) (interface{}, error) {
	q := pageQuery(in.Limit, in.After)
	if in.Query != "" {
		q.Set("q", in.Query)
	}
	res, err := d.IdP.Get(ctx, "/groups", q)
	if err != nil {
		return nil, err
	}
	var groups []oktaGroup
	if err := res.Decode(&groups); err != nil {
		return nil, err
	}
	items := make([]domain.GroupResult, 0, len(groups))
	for _, g := range groups {
		item := domain.GroupResult{ID: g.ID, Type: g.Type}
		if g.Profile != nil {
			item.Name = g.Profile.Name
		}
		items = append(items, item)
	}
	return domain.Page[domain.GroupResult]{Items: items, NextCursor: cursor(res)}, nil
}

func (d Deps) listApps(ctx context.Context, in ListQueryInput) (interface{}, error) {
	q := pageQuery(in.Limit, in.After)
	if in.Query != "" {
		q.Set("q", in.Query)
	}
	res, err := d.IdP.Get(ctx, "/apps", q)
	if err != nil {
		return nil, err
	}
	var apps []oktaApp
	if err := res.Decode(&apps); err != nil {
		return nil, err
	}
	items := make([]domain.AppResult, 0, len(apps))
	for _, a := range apps {
		items = append(items, domain.AppResult{ID: a.ID, Label: a.Label, Status: a.Status, Name: a.Name})
	}
	return domain.Page[domain.AppResult]{Items: items, NextCursor: cursor(res)}, nil
}

func (d Deps) systemLog(ctx context.Context, in LogQueryInput) (interface{}, error) {
	q := pageQuery(in.Limit, in.After)
	for k, v := range map[string]string{"query": in.Query, "since": in.Since, "until": in.Until} {
		if v != "" {
			q.Set(k, v)
		}
	}
	res, err := d.IdP.Get(ctx, "/logs", q)
	if err != nil {
		return nil, err
	}
	var events []oktaLogEvent
	if err := res.Decode(&events); err != nil {
		return nil, err
	}
	items := make([]domain.LogEventResult, 0, len(events))
	for _, e := range events {
		item := domain.LogEventResult{UUID: e.UUID, Published: e.Published, EventType: e.EventType}
		if e.Outcome != nil {
			item.Outcome = e.Outcome.Result
		}
		if e.Actor != nil {
			item.Actor = e.Actor.DisplayName
		}
		if len(e.Target) > 0 {
			item.Target = e.Target[0].DisplayName
		}
		items = append(items, item)
	}
	return domain.Page[domain.LogEventResult]{Items: items, NextCursor: cursor(res)}, nil
}

func pageQuery(limit *int, after string) url.Values {
	n := defaultLimit
	if limit != nil {
		n = *limit
	}
	q := url.Values{"limit": {strconv.Itoa(n)}}
	if after != "" {
		q.Set("after", after)
	}
	return q
}

func cursor(res *okta.Response) *string {
	// Okta присылает self и next отдельными заголовками Link
	next := okta.NextCursor(strings.Join(res.Header.Values("Link"), ", "))
	if next == "" {
		return nil
	}
	return &next
}

func escapeQuotes(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

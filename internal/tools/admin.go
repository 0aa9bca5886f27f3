package tools

import (
	"context"
	"fmt"
	"net/url"

	"github.com/xela07ax/idp-admin-gateway/internal/domain"
)

func registerAdminTools(c *Catalog, d Deps) {
	lifecycle := func(step, verb string) Action[UserIDInput] {
		return func(ctx context.Context, in UserIDInput) (interface{}, error) {
			if _, err := d.IdP.Post(ctx, userPath(in.UserID, "lifecycle", step), nil, nil); err != nil {
				return nil, err
			}
			return domain.ActionResult{OK: true, Message: fmt.Sprintf("User %s %s successfully", in.UserID, verb)}, nil
		}
	}

	c.register(NewConfirmationPair(d, "suspend_user", "suspend user",
		func(ctx context.Context, in SuspendUserInput) (interface{}, error) {
			if _, err := d.IdP.Post(ctx, userPath(in.UserID, "lifecycle", "suspend"), nil, nil); err != nil {
				return nil, err
			}
			return domain.ActionResult{OK: true, Message: fmt.Sprintf("User %s suspended successfully", in.UserID)}, nil
		}))

	c.register(NewConfirmationPair(d, "unsuspend_user", "unsuspend user", lifecycle("unsuspend", "unsuspended")))
	c.register(NewConfirmationPair(d, "deactivate_user", "deactivate user", lifecycle("deactivate", "deactivated")))
	c.register(NewConfirmationPair(d, "reactivate_user", "reactivate user", lifecycle("reactivate", "reactivated")))

	c.register(NewConfirmationPair(d, "clear_user_sessions", "clear user sessions",
		func(ctx context.Context, in UserIDInput) (interface{}, error) {
			if _, err := d.IdP.Delete(ctx, userPath(in.UserID, "sessions"), nil); err != nil {
				return nil, err
			}
			return domain.ActionResult{OK: true, Message: fmt.Sprintf("All sessions cleared for user %s", in.UserID)}, nil
		}))

	c.register(NewConfirmationPair(d, "add_user_to_group", "add user to group",
		func(ctx context.Context, in UserGroupInput) (interface{}, error) {
			if _, err := d.IdP.Put(ctx, groupMemberPath(in.GroupID, in.UserID), nil, nil); err != nil {
				return nil, err
			}
			return domain.ActionResult{OK: true, Message: fmt.Sprintf("User %s added to group %s", in.UserID, in.GroupID)}, nil
		}))

	c.register(NewConfirmationPair(d, "remove_user_from_group", "remove user from group",
		func(ctx context.Context, in UserGroupInput) (interface{}, error) {
			if _, err := d.IdP.Delete(ctx, groupMemberPath(in.GroupID, in.UserID), nil); err != nil {
				return nil, err
			}
			return domain.ActionResult{OK: true, Message: fmt.Sprintf("User %s removed from group %s", in.UserID, in.GroupID)}, nil
		}))

	c.register(NewConfirmationPair(d, "reset_password", "reset user password",
		func(ctx context.Context, in UserIDInput) (interface{}, error) {
			res, err := d.IdP.Post(ctx, userPath(in.UserID, "lifecycle", "expiring_password"),
				url.Values{"tempPassword": {"true"}}, nil)
			if err != nil {
				return nil, err
			}
			var body struct {
				TempPassword string `json:"tempPassword"`
			}
			if err := res.Decode(&body); err != nil {
				return nil, err
			}
			return domain.ActionResult{
				OK:           true,
				Message:      fmt.Sprintf("Password reset for user %s", in.UserID),
				TempPassword: body.TempPassword,
			}, nil
		}))
}

func userPath(userID string, parts ...string) string {
	p := "/users/" + url.PathEscape(userID)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func groupMemberPath(groupID, userID string) string {
	return "/groups/" + url.PathEscape(groupID) + "/users/" + url.PathEscape(userID)
}

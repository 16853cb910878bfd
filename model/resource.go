package model

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cast"
)

// PlatformType is a simple reference entity that classifies platforms.
type PlatformType struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

// PlatformGroup logically owns platforms through Platform.GroupID.
type PlatformGroup struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Status      GroupStatus `json:"status"`
	Order       int         `json:"order"`
	CreatedAt   string      `json:"createdAt,omitempty"`
	UpdatedAt   string      `json:"updatedAt,omitempty"`
}

// Platform carries the match and exclusion rules the backend applies to
// uploaded rows.
type Platform struct {
	ID            int64    `json:"id"`
	GroupID       int64    `json:"platform_group_id"`
	TypeID        int64    `json:"platform_type_id"`
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	Order         int      `json:"order"`
	MatchRule     RuleList `json:"match_rule"`
	ExclusionRule RuleList `json:"exclusion_rule"`
	CreatedAt     string   `json:"createdAt,omitempty"`
	UpdatedAt     string   `json:"updatedAt,omitempty"`
}

// GroupStatus is enabled or disabled. The backend stores it as 1/0 and the
// original form submitted true/false, so both decode.
type GroupStatus string

const (
	GroupEnabled  GroupStatus = "enabled"
	GroupDisabled GroupStatus = "disabled"
)

// Valid reports whether s is one of the known statuses.
func (s GroupStatus) Valid() bool {
	return s == GroupEnabled || s == GroupDisabled
}

// Label returns the console's display label.
func (s GroupStatus) Label() string {
	if s == GroupEnabled {
		return "启用"
	}
	return "禁用"
}

// MarshalJSON writes the backend's numeric form.
func (s GroupStatus) MarshalJSON() ([]byte, error) {
	switch s {
	case GroupEnabled:
		return []byte("1"), nil
	case GroupDisabled:
		return []byte("0"), nil
	case "":
		return []byte("null"), nil
	}
	return nil, fmt.Errorf("model: unknown group status %q", string(s))
}

// UnmarshalJSON accepts 1/0, true/false, "1"/"0" and "enabled"/"disabled".
func (s *GroupStatus) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = ""
		return nil
	}
	if str, ok := raw.(string); ok {
		switch GroupStatus(str) {
		case GroupEnabled, GroupDisabled:
			*s = GroupStatus(str)
			return nil
		}
	}
	on, err := cast.ToBoolE(raw)
	if err != nil {
		return fmt.Errorf("model: group status %s: %w", string(data), err)
	}
	if on {
		*s = GroupEnabled
	} else {
		*s = GroupDisabled
	}
	return nil
}

// PlatformTypeInput is the create/update payload for a platform type.
// Nil fields are left out of update patches.
type PlatformTypeInput struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// PlatformGroupInput is the create/update payload for a platform group.
type PlatformGroupInput struct {
	Name        *string      `json:"name,omitempty"`
	Description *string      `json:"description,omitempty"`
	Status      *GroupStatus `json:"status,omitempty"`
	Order       *int         `json:"order,omitempty"`
}

// PlatformInput is the create/update payload for a platform.
type PlatformInput struct {
	GroupID       *int64    `json:"platform_group_id,omitempty"`
	TypeID        *int64    `json:"platform_type_id,omitempty"`
	Name          *string   `json:"name,omitempty"`
	Description   *string   `json:"description,omitempty"`
	Order         *int      `json:"order,omitempty"`
	MatchRule     *RuleList `json:"match_rule,omitempty"`
	ExclusionRule *RuleList `json:"exclusion_rule,omitempty"`
}

// Credentials is the login and register payload.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// User is the account returned by login and the profile endpoint.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// LoginResponse is the data returned by POST /api/users/login.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// Key returns the entity id.
func (t PlatformType) Key() int64 { return t.ID }

// SearchText returns the fields the list search matches against.
func (t PlatformType) SearchText() []string { return []string{t.Name, t.Description} }

// Key returns the entity id.
func (g PlatformGroup) Key() int64 { return g.ID }

// SearchText returns the fields the list search matches against.
func (g PlatformGroup) SearchText() []string { return []string{g.Name, g.Description} }

// Key returns the entity id.
func (p Platform) Key() int64 { return p.ID }

// SearchText returns the fields the list search matches against.
func (p Platform) SearchText() []string { return []string{p.Name, p.Description} }
